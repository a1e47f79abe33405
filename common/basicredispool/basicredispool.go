// Package basicredispool is a fixed size pool of redis connections
package basicredispool

import (
	"net"

	"github.com/mediocregopher/radix/v3"
	"github.com/pkg/errors"
)

// Pool is a radix.Client handing out a fixed number of connections, a connection that fails
// with a network error is redialed the next time it's used
type Pool struct {
	addr string
	pool chan radix.Conn
	size int
}

var _ radix.Client = (*Pool)(nil)

func NewPool(size int, addr string) (*Pool, error) {
	p := &Pool{
		addr: addr,
		pool: make(chan radix.Conn, size),
		size: size,
	}

	for i := 0; i < size; i++ {
		c, err := radix.Dial("tcp", addr)
		if err != nil {
			p.closeN(i)
			return nil, errors.WithMessage(err, "radix.Dial")
		}

		p.pool <- c
	}

	return p, nil
}

func (p *Pool) get() radix.Conn {
	return <-p.pool
}

func (p *Pool) put(c radix.Conn) {
	p.pool <- c
}

func (p *Pool) Do(a radix.Action) error {
	c := p.get()

	err := c.Do(a)
	if _, ok := errors.Cause(err).(net.Error); ok {
		c.Close()
		if redialed, dialErr := radix.Dial("tcp", p.addr); dialErr == nil {
			c = redialed
		}
	}

	p.put(c)
	return err
}

func (p *Pool) Close() error {
	p.closeN(p.size)
	return nil
}

func (p *Pool) closeN(n int) {
	for i := 0; i < n; i++ {
		c := p.get()
		c.Close()
	}
}
