// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package tuyadp

import (
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")

	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s (0x%02X) seq=%d records=%d\n",
		timestamp, FormatCommand(f.command), uint8(f.command), f.seq, len(f.records))
	for _, r := range f.records {
		b.WriteString("  ")
		b.WriteString(FormatRecord(r))
		b.WriteString("\n")
	}
	return b.String()
}

// FormatCommand returns the human-readable name for a command
func FormatCommand(cmd Command) string {
	switch cmd {
	case CmdDataRequest:
		return "DATA_REQUEST"
	case CmdDataResponse:
		return "DATA_RESPONSE"
	case CmdDataReport:
		return "DATA_REPORT"
	case CmdDataQuery:
		return "DATA_QUERY"
	default:
		return "UNKNOWN"
	}
}

// FormatDataType returns the human-readable name for a DP data type
func FormatDataType(t DataType) string {
	switch t {
	case TypeRaw:
		return "raw"
	case TypeBool:
		return "bool"
	case TypeValue:
		return "value"
	case TypeString:
		return "string"
	case TypeEnum:
		return "enum"
	case TypeBitmap:
		return "bitmap"
	default:
		return fmt.Sprintf("type_0x%02X", uint8(t))
	}
}

// FormatRecord formats a single DP record with its decoded value
func FormatRecord(r RawFrame) string {
	head := fmt.Sprintf("%s (dp %d, %s, %d bytes)", r.DP, uint8(r.DP), FormatDataType(r.Type), len(r.Data))

	res, err := Decode(r)
	switch {
	case err != nil:
		return fmt.Sprintf("%s: ERROR %v [% X]", head, err, r.Data)
	case res.Kind == KindState:
		return fmt.Sprintf("%s: %s", head, res.State)
	case res.Kind == KindNumber:
		return fmt.Sprintf("%s: %d", head, res.Number)
	default:
		return fmt.Sprintf("%s: [% X]", head, r.Data)
	}
}
