// Copyright 2021-2026 the Loginrelay contributors. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/pflag"
	"sigs.k8s.io/yaml"
)

// outputFormat selects how a command prints its result.
// this is meant to be a valid pflag.Value implementation.
type outputFormat string

var _ pflag.Value = new(outputFormat)

const (
	outputYAML outputFormat = "yaml"
	outputJSON outputFormat = "json"
)

func (o *outputFormat) String() string {
	if len(*o) == 0 {
		return string(outputYAML)
	}
	return string(*o)
}

func (o *outputFormat) Set(s string) error {
	switch f := outputFormat(strings.ToLower(s)); f {
	case outputYAML, outputJSON:
		*o = f
		return nil
	default:
		return fmt.Errorf("invalid output format %q, valid formats are yaml and json", s)
	}
}

func (o *outputFormat) Type() string {
	return "format"
}

// print writes v to out in the selected format.
func (o *outputFormat) print(out io.Writer, v any) error {
	var (
		data []byte
		err  error
	)
	switch *o {
	case outputJSON:
		data, err = json.MarshalIndent(v, "", "  ")
		data = append(data, '\n')
	default:
		data, err = yaml.Marshal(v)
	}
	if err != nil {
		return fmt.Errorf("could not encode output: %w", err)
	}
	_, err = out.Write(data)
	return err
}
