package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/njabbott/npp-simulation/internal/domain"
	"github.com/njabbott/npp-simulation/pkg/nppclient"
)

var lookupJSON bool

func resolveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "resolve TYPE VALUE",
		Short: "Resolve a PayID to its payee account",
		Long: `Resolve a PayID through the NPP addressing service.

TYPE is one of PHONE, EMAIL or ABN (case-insensitive).`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payIDType, ok := domain.ParsePayIDType(args[0])
			if !ok {
				return fmt.Errorf("unsupported PayID type %q", args[0])
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := nppclient.NewClient(cfg.NPPAPIBaseURL, cfg.NPPAPITimeout())

			payee, err := client.ResolvePayID(cmd.Context(), payIDType, args[1])
			if err != nil {
				return err
			}
			if lookupJSON {
				return outputJSON(cmd.OutOrStdout(), payee)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintf(w, "Name:\t%s\n", payee.DisplayName)
			fmt.Fprintf(w, "BSB:\t%s\n", payee.BSB)
			fmt.Fprintf(w, "Account:\t%s\n", payee.AccountNumber)
			fmt.Fprintf(w, "Bank:\t%s (%s)\n", payee.BankName, payee.BankBIC)
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&lookupJSON, "json", false, "Output as JSON")
	return cmd
}

func payIDsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "payids",
		Short: "List the registered PayIDs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			client := nppclient.NewClient(cfg.NPPAPIBaseURL, cfg.NPPAPITimeout())

			payees, err := client.ListPayIDs(cmd.Context())
			if err != nil {
				return err
			}
			if lookupJSON {
				return outputJSON(cmd.OutOrStdout(), payees)
			}
			if len(payees) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No PayIDs registered.")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TYPE\tVALUE\tNAME\tBANK")
			for _, p := range payees {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.PayIDType, p.Value, p.DisplayName, p.BankName)
			}
			return w.Flush()
		},
	}
	cmd.Flags().BoolVar(&lookupJSON, "json", false, "Output as JSON")
	return cmd
}

func outputJSON(w io.Writer, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(w, string(data))
	return nil
}
