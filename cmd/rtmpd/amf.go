package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/torresjeff/rtmpserver/amf/amf0"
)

func amfCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "amf0",
		Short: "Inspect AMF0 payloads",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "decode <hex>",
		Short: "Decode a hex encoded AMF0 payload, such as a captured command message",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := hex.DecodeString(strings.Join(strings.Fields(args[0]), ""))
			if err != nil {
				return errors.Wrap(err, "invalid hex")
			}
			return printValues(cmd.OutOrStdout(), payload)
		},
	})
	return cmd
}

func printValues(w io.Writer, payload []byte) error {
	values, n, err := amf0.Decode(payload)
	for _, v := range values {
		printValue(w, v, 0)
	}
	if err != nil {
		return errors.Wrapf(err, "decode failed at offset %d", n)
	}
	return nil
}

func printValue(w io.Writer, v amf0.Value, depth int) {
	indent := strings.Repeat("  ", depth)
	switch v := v.(type) {
	case *amf0.Object:
		fmt.Fprintf(w, "%sobject (%d keys)\n", indent, v.Len())
		for _, key := range v.Keys() {
			value, _ := v.Get(key)
			fmt.Fprintf(w, "%s  %s:\n", indent, key)
			printValue(w, value, depth+2)
		}
	case amf0.String:
		fmt.Fprintf(w, "%sstring %q\n", indent, string(v))
	case amf0.Unsupported:
		fmt.Fprintf(w, "%s%s (%d bytes skipped)\n", indent, v.Kind(), len(v.Raw))
	case amf0.Date:
		fmt.Fprintf(w, "%sdate %s\n", indent, v.Time().UTC().Format("2006-01-02T15:04:05.000Z"))
	default:
		fmt.Fprintf(w, "%s%s %v\n", indent, v.Kind(), v)
	}
}
