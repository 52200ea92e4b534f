package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xcawolfe-amzn/ppg/internal/api"
	"github.com/xcawolfe-amzn/ppg/internal/watch"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only manifest HTTP+WebSocket consumer interface",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":4280", "address to listen on")
}

func runServe(cmd *cobra.Command, args []string) error {
	e, err := newEnv()
	if err != nil {
		return err
	}

	w, err := watch.Watch(cmd.Context(), e.Layout.ManifestPath())
	if err != nil {
		return fmt.Errorf("starting manifest watch: %w", err)
	}
	defer w.Close()

	h := api.NewHandlers(e.Store, w)
	router := api.NewRouter(h)

	fmt.Fprintln(cmd.OutOrStdout(), "serving on", serveAddr)
	return router.Run(serveAddr)
}
