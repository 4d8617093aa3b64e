// Package logging provides the console formatter used by the scraper:
// colored, single-line logrus output with domain fields highlighted.
package logging

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

// ColoredTextFormatter renders logrus entries as colored key=value lines.
type ColoredTextFormatter struct {
	// TimestampFormat controls the timestamp layout
	TimestampFormat string
	// DisableColors turns off ANSI colors (e.g. when logging to a file)
	DisableColors bool
}

// NewColoredTextFormatter returns a formatter with the default timestamp
// layout.
func NewColoredTextFormatter() *ColoredTextFormatter {
	return &ColoredTextFormatter{
		TimestampFormat: time.RFC3339,
	}
}

// Fields that identify what is being processed; rendered green so a RUC or
// batch number can be picked out of a busy console.
var importantFields = map[string]bool{
	"ruc":        true,
	"worker_id":  true,
	"batch":      true,
	"session":    true,
	"error_kind": true,
	"attempt":    true,
}

// Format implements logrus.Formatter.
func (f *ColoredTextFormatter) Format(entry *logrus.Entry) ([]byte, error) {
	var b *bytes.Buffer
	if entry.Buffer != nil {
		b = entry.Buffer
	} else {
		b = &bytes.Buffer{}
	}

	if f.DisableColors {
		color.NoColor = true
	}

	levelColor := levelColorOf(entry.Level)
	timeColor := color.New(color.FgYellow)

	tsFormat := f.TimestampFormat
	if tsFormat == "" {
		tsFormat = time.RFC3339
	}

	b.WriteString(timeColor.Sprint(entry.Time.Format(tsFormat)))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprintf("%-7s", strings.ToUpper(entry.Level.String())))
	b.WriteByte(' ')
	b.WriteString(levelColor.Sprint(entry.Message))

	keys := make([]string, 0, len(entry.Data))
	for k := range entry.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	valueColor := color.New(color.FgWhite)
	for _, k := range keys {
		fieldColor := color.New(color.FgCyan)
		if importantFields[k] {
			fieldColor = color.New(color.FgGreen)
		}

		b.WriteByte(' ')
		b.WriteString(fieldColor.Sprintf("%s=", k))
		b.WriteString(valueColor.Sprint(formatValue(entry.Data[k])))
	}

	b.WriteByte('\n')
	return b.Bytes(), nil
}

func formatValue(v interface{}) string {
	switch v := v.(type) {
	case string:
		return fmt.Sprintf("%q", v)
	case error:
		return fmt.Sprintf("%q", v.Error())
	default:
		jsonBytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(jsonBytes)
	}
}

func levelColorOf(level logrus.Level) *color.Color {
	switch level {
	case logrus.DebugLevel, logrus.TraceLevel:
		return color.New(color.FgCyan)
	case logrus.WarnLevel:
		return color.New(color.FgYellow)
	case logrus.ErrorLevel, logrus.FatalLevel, logrus.PanicLevel:
		return color.New(color.FgRed)
	default:
		return color.New(color.FgGreen)
	}
}
