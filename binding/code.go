package binding

import (
	"fmt"
	"sync"
	"time"

	"golang.org/x/exp/rand"
)

const alnumAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZ"

// codeGenerator 生成验证码。验证码是防误输的短效口令，
// 不是加密材料，使用普通伪随机源即可。
type codeGenerator struct {
	length int
	format string // number | alnum

	mu  sync.Mutex
	rng *rand.Rand
}

func newCodeGenerator(length int, format string) *codeGenerator {
	if length <= 0 {
		length = 6
	}
	return &codeGenerator{
		length: length,
		format: format,
		rng:    rand.New(rand.NewSource(uint64(time.Now().UnixNano()))),
	}
}

func (g *codeGenerator) generate() string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.format == "number" || g.format == "" {
		max := 1
		for i := 0; i < g.length; i++ {
			max *= 10
		}
		return fmt.Sprintf("%0*d", g.length, g.rng.Intn(max))
	}

	buf := make([]byte, g.length)
	for i := range buf {
		buf[i] = alnumAlphabet[g.rng.Intn(len(alnumAlphabet))]
	}
	return string(buf)
}
