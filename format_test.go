package xmlbox_test

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/KimNorgaard/go-xmlbox"
)

type formatCase struct {
	Name            string `yaml:"name"`
	Input           string `yaml:"input"`
	Indent          int    `yaml:"indent"`
	SortedKeys      bool   `yaml:"sortedKeys"`
	NoEmptyElements bool   `yaml:"noEmptyElements"`
	Header          bool   `yaml:"header"`
	Expected        string `yaml:"expected"`
	Error           string `yaml:"error"`
}

func (c formatCase) options() []xmlbox.Option {
	opts := []xmlbox.Option{xmlbox.Indent(c.Indent)}
	if c.SortedKeys {
		opts = append(opts, xmlbox.SortedKeys())
	}
	if c.NoEmptyElements {
		opts = append(opts, xmlbox.NoEmptyElements())
	}
	if c.Header {
		opts = append(opts, xmlbox.Header())
	}
	return opts
}

func TestFormat(t *testing.T) {
	data, err := os.ReadFile("testdata/format.yaml")
	require.NoError(t, err)

	var cases []formatCase
	require.NoError(t, yaml.Unmarshal(data, &cases))
	require.NotEmpty(t, cases)

	for _, tc := range cases {
		t.Run(tc.Name, func(t *testing.T) {
			out, err := xmlbox.Format([]byte(tc.Input), tc.options()...)
			if tc.Error != "" {
				require.EqualError(t, err, tc.Error)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.Expected, string(out))
		})
	}
}

func TestFormat_InvalidOption(t *testing.T) {
	_, err := xmlbox.Format([]byte("<r/>"), xmlbox.MaxDepth(0))
	require.EqualError(t, err, "xmlbox: max depth must be a positive integer")
}
