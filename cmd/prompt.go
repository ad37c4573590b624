package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"github.com/spf13/cobra"
)

func prompt(cmd *cobra.Command, question string) (string, error) {
	_, _ = fmt.Fprint(cmd.OutOrStdout(), question)

	reader := bufio.NewReader(cmd.InOrStdin())
	input, err := reader.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read answer: %w", err)
	}

	return strings.TrimSpace(input), nil
}

// confirm asks a yes/no question that defaults to no. skip answers yes without asking.
func confirm(cmd *cobra.Command, question string, skip bool) (bool, error) {
	if skip {
		return true, nil
	}

	answer, err := prompt(cmd, question+" [y/N] ")
	if err != nil {
		return false, err
	}

	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	default:
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), "cancelled")
		return false, nil
	}
}

func sanitizeForTerminal(value string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		return r
	}, value)
}
