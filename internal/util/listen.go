package util

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/rs/zerolog/log"
)

// ListenTCP binds host:basePort, falling back to the next ports when one is
// taken. It gives up after attempts ports.
func ListenTCP(host string, basePort int, attempts int) (net.Listener, error) {
	if attempts <= 0 {
		attempts = 1
	}

	var errs []error
	for i := 0; i < attempts; i++ {
		address := net.JoinHostPort(host, strconv.Itoa(basePort+i))
		listener, err := net.Listen("tcp", address)
		if err == nil {
			return listener, nil
		}

		log.Warn().Err(err).Str("address", address).Msg("port unavailable, trying next")
		errs = append(errs, err)
	}

	return nil, fmt.Errorf("no free port in %d-%d: %w", basePort, basePort+attempts-1, errors.Join(errs...))
}
