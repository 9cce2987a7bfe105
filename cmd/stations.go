package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStationsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stations",
		Short: "Lists the stations persisted in the store",
		RunE:  withApp(listStations),
	}
}

func listStations(cmd *cobra.Command, appInstance App) error {
	stations, err := appInstance.GetStore().ListStations(cmd.Context())
	if err != nil {
		return fmt.Errorf("list stations: %w", err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCOUNTRY\tLAT\tLON")
	for _, st := range stations {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f\t%.4f\n", st.ID, st.Name, st.Country, st.Latitude, st.Longitude)
	}
	return tw.Flush()
}
