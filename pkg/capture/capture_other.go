//go:build !unix

package capture

import "github.com/wehubfusion/partbench/pkg/errors"

type savedFds struct{}

func redirect(int) (*savedFds, error) {
	return nil, errors.ErrUnsupported
}

func (s *savedFds) restore() error {
	return nil
}
