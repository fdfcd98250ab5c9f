package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("EXAMDESK_TEST_MODE") == "" {
			_ = os.Setenv("EXAMDESK_TEST_MODE", "1")
		}
	})
}
