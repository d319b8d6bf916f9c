package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"sitekit/filters"
)

var (
	pageURL    string
	dateFormat string
)

var filterCmd = &cobra.Command{
	Use:   "filter",
	Short: "Template filters for generators that shell out",
}

var filterAbsoluteCmd = &cobra.Command{
	Use:   "absolute",
	Short: "Rewrite relative links in HTML read from stdin to absolute URLs",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		f, err := filters.New(cfg.Site)
		if err != nil {
			return err
		}

		content, err := io.ReadAll(cmd.InOrStdin())
		if err != nil {
			return fmt.Errorf("failed to read content: %w", err)
		}
		out, err := f.Absolute(string(content), pageURL)
		if err != nil {
			return err
		}
		_, err = io.WriteString(cmd.OutOrStdout(), out)
		return err
	},
}

var filterDateCmd = &cobra.Command{
	Use:   "date [date]",
	Short: "Format an RFC 3339 or YYYY-MM-DD date",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		t, err := parseDate(args[0])
		if err != nil {
			return err
		}

		var out string
		switch strings.ToLower(dateFormat) {
		case "long":
			out = filters.DateLong(t)
		case "short":
			out = filters.DateShort(t)
		case "iso":
			out = filters.DateISO(t)
		default:
			return fmt.Errorf("unknown date format %q (long, short, iso)", dateFormat)
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), out)
		return err
	},
}

func init() {
	filterAbsoluteCmd.Flags().StringVar(&pageURL, "page-url", "/", "URL of the page the content belongs to")
	filterDateCmd.Flags().StringVar(&dateFormat, "format", "long", "long, short or iso")
	filterCmd.AddCommand(filterAbsoluteCmd, filterDateCmd)
}

func parseDate(value string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339, time.DateOnly} {
		if t, err := time.Parse(layout, value); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid date %q", value)
}
