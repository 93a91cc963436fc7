package orm

import "github.com/iov-one/quorum/errors"

type Counter struct {
	Count int64
	Label string
}

func (c *Counter) Validate() error {
	if c.Count < 0 {
		return errors.Wrap(errors.ErrInvalidInput, "negative count")
	}
	return nil
}

type Other struct {
	Name string
}

func (o *Other) Validate() error { return nil }

// valueModel implements Model with a value receiver so a non-pointer
// prototype can be passed to NewModelBucket.
type valueModel struct{}

func (valueModel) Validate() error { return nil }
