package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("PHARMAOS_TEST_MODE") == "" {
			_ = os.Setenv("PHARMAOS_TEST_MODE", "1")
		}
	})
}
