package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/aak-rpa/henstilling-sync/internal/geo"
	"github.com/aak-rpa/henstilling-sync/internal/identity"
)

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Offline helpers for operators",
	Long:  "Validate a CVR number, compute a record key, or clean an address the way sync does.",
}

var checkCVRCmd = &cobra.Command{
	Use:   "cvr <number>",
	Short: "Validate a CVR number checksum",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !identity.ValidateOwnerID(args[0]) {
			return eris.Errorf("check: %q is not a valid CVR number", args[0])
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", args[0])
		return nil
	},
}

var checkKeyCmd = &cobra.Command{
	Use:   "key <case-id> <item-number>",
	Short: "Print the record key for a violation item",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return eris.Errorf("check: item number must be a positive integer, got %q", args[1])
		}
		fmt.Fprintln(cmd.OutOrStdout(), identity.BuildItemKey(args[0], n))
		return nil
	},
}

var checkAddressCmd = &cobra.Command{
	Use:   "address <text>",
	Short: "Print the geocoding query for a portal address",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cleaned, ok := geo.CleanAddress(args[0])
		if !ok {
			fmt.Fprintln(os.Stderr, "No street and house number found.")
			return eris.Errorf("check: cannot clean address %q", args[0])
		}
		fmt.Fprintln(cmd.OutOrStdout(), cleaned)
		return nil
	},
}

var checkCategoryCmd = &cobra.Command{
	Use:   "category [text]",
	Short: "Show the permit type for a violation text, or list the allow-list",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := identity.DefaultCatalog()
		out := cmd.OutOrStdout()
		if len(args) == 0 {
			for _, code := range cat.Codes() {
				label, _ := cat.Label(code)
				fmt.Fprintf(out, "%-5s %s\n", code, label)
			}
			return nil
		}
		code, ok := cat.ParseCategory(args[0])
		if !ok {
			return eris.Errorf("check: %q is not a billable category", args[0])
		}
		label, _ := cat.Label(code)
		fmt.Fprintf(out, "%s\t%s\t%s\n", code, label, cat.Description(args[0]))
		return nil
	},
}

func init() {
	checkCmd.AddCommand(checkCVRCmd, checkKeyCmd, checkAddressCmd, checkCategoryCmd)
	rootCmd.AddCommand(checkCmd)
}
