package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nikolayk812/checkoutflow/internal/domain"
	"github.com/nikolayk812/checkoutflow/internal/shipping"
	"github.com/spf13/cobra"
)

func tiersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tiers <rates.json>",
		Short: "Print the tier representatives of a JSON array of carrier options",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("os.ReadFile: %w", err)
			}

			var options []domain.CarrierOption
			if err := json.Unmarshal(data, &options); err != nil {
				return fmt.Errorf("json.Unmarshal: %w", err)
			}

			choices, err := shipping.Group(options)
			if err != nil {
				return fmt.Errorf("shipping.Group: %w", err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(choices)
		},
	}
}
