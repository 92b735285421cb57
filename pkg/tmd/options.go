package tmd

import (
	"go.uber.org/zap"

	"github.com/Faultbox/tmdkit/pkg/encoding"
)

// Option configures Decode and Encode.
type Option func(*options)

type options struct {
	log          *zap.Logger
	textEncoding string
}

// WithLogger sets the logger used for section-level debug output.
func WithLogger(l *zap.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.log = l
		}
	}
}

// WithTextEncoding selects the name table encoding by label ("cp932",
// "shift_jis", "euc-kr", "utf-8", ...). The default is cp932.
func WithTextEncoding(name string) Option {
	return func(o *options) {
		o.textEncoding = name
	}
}

func buildOptions(opts []Option) (*options, *encoding.Text, error) {
	o := &options{log: zap.NewNop(), textEncoding: encoding.DefaultName}
	for _, opt := range opts {
		opt(o)
	}
	text, err := encoding.Lookup(o.textEncoding)
	if err != nil {
		return nil, nil, err
	}
	return o, text, nil
}
