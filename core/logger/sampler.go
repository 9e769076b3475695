package logger

import (
	"strconv"
	"strings"
	"sync/atomic"
)

// sampler lets num out of every den calls through. A zero ratio lets everything through.
type sampler struct {
	ratio atomic.Uint64 // num<<32 | den
	n     atomic.Uint64
}

func (s *sampler) set(num, den int) {
	if num <= 0 || den <= 0 {
		s.ratio.Store(0)
		return
	}
	num = min(num, den)
	s.ratio.Store(uint64(num)<<32 | uint64(den))
}

func (s *sampler) allow() bool {
	r := s.ratio.Load()
	if r == 0 {
		return true
	}
	num, den := r>>32, r&0xffffffff
	return (s.n.Add(1)-1)%den < num
}

// parseRatio accepts "num/den" or a bare "den" meaning 1/den.
// ok is false for malformed input.
func parseRatio(spec string) (num, den int, ok bool) {
	spec = strings.TrimSpace(spec)
	if a, b, found := strings.Cut(spec, "/"); found {
		n, err1 := strconv.Atoi(strings.TrimSpace(a))
		d, err2 := strconv.Atoi(strings.TrimSpace(b))
		return n, d, err1 == nil && err2 == nil
	}
	d, err := strconv.Atoi(spec)
	if err != nil {
		return 0, 0, false
	}
	return 1, d, true
}
