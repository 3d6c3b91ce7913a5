package cmd

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// promptString prompts until a value is entered, the default applies, or input ends.
func promptString(reader *bufio.Reader, w io.Writer, prompt string, required bool, defaultValue string) string {
	for {
		if defaultValue != "" {
			fmt.Fprintf(w, "%s (default: %s): ", prompt, defaultValue)
		} else if required {
			fmt.Fprintf(w, "%s (required): ", prompt)
		} else {
			fmt.Fprintf(w, "%s: ", prompt)
		}

		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(input)
		if err != nil && input == "" {
			if err != io.EOF {
				errorColor.Fprintf(w, "Error reading input: %v\n", err)
			}
			return defaultValue
		}

		if input == "" {
			if defaultValue != "" {
				return defaultValue
			}
			if !required {
				return ""
			}
			errorColor.Fprintln(w, "This field is required")
			continue
		}

		return input
	}
}

// promptYesNo prompts for a yes/no response. End of input yields the default.
func promptYesNo(reader *bufio.Reader, w io.Writer, prompt string, defaultValue bool) bool {
	defaultStr := "N"
	if defaultValue {
		defaultStr = "Y"
	}

	for {
		fmt.Fprintf(w, "%s [y/N] (default: %s): ", prompt, defaultStr)
		input, err := reader.ReadString('\n')
		input = strings.TrimSpace(strings.ToLower(input))
		if err != nil && input == "" {
			return defaultValue
		}

		switch input {
		case "":
			return defaultValue
		case "y", "yes":
			return true
		case "n", "no":
			return false
		}

		errorColor.Fprintln(w, "Please enter 'y' or 'n'")
	}
}
