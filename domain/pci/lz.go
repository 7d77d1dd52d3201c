package pci

// Scanner is a streaming Kaspar-Schuster Lempel-Ziv (LZ76) phrase counter.
// Symbols are appended incrementally; Complexity reports the phrase count of
// everything consumed so far, so a cumulative curve over a growing sequence
// costs one scan total instead of one scan per prefix.
type Scanner struct {
	s []byte

	c    int // completed phrases beyond the first symbol
	l    int // start of the phrase being parsed
	i    int // candidate match start, i < l
	k    int // current match length
	kmax int // longest reproduction found for the current phrase
}

// NewScanner returns an empty scanner
func NewScanner() *Scanner {
	return &Scanner{l: 1, k: 1, kmax: 1}
}

// Append feeds symbols and advances the parse as far as the data allows
func (sc *Scanner) Append(symbols ...byte) {
	sc.s = append(sc.s, symbols...)
	sc.advance()
}

// Len returns how many symbols have been consumed
func (sc *Scanner) Len() int { return len(sc.s) }

// Complexity returns the LZ76 phrase count of the sequence so far: the first
// symbol, every completed phrase, and the in-progress phrase if one exists.
func (sc *Scanner) Complexity() int {
	n := len(sc.s)
	if n == 0 {
		return 0
	}
	c := 1 + sc.c
	if sc.l < n {
		c++
	}
	return c
}

func (sc *Scanner) advance() {
	n := len(sc.s)
	for sc.l < n && sc.l+sc.k-1 < n {
		if sc.s[sc.i+sc.k-1] == sc.s[sc.l+sc.k-1] {
			sc.k++
			continue
		}
		if sc.k > sc.kmax {
			sc.kmax = sc.k
		}
		sc.i++
		if sc.i == sc.l {
			// no candidate reproduces further: phrase closes one symbol
			// past its longest reproduction
			sc.c++
			sc.l += sc.kmax
			sc.i, sc.k, sc.kmax = 0, 1, 1
		} else {
			sc.k = 1
		}
	}
}
