package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/gobinder/pkg/servicemanager"
)

var pingInterface string

var pingCmd = &cobra.Command{
	Use:   "ping [service]",
	Short: "Ping the ServiceManager or a named service",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client, err := openClient(cfg)
		if err != nil {
			return err
		}
		defer client.Close()

		// Construction already pings handle 0.
		sm, err := servicemanager.New(client)
		if err != nil {
			return err
		}

		if len(args) == 0 {
			cmd.Println("servicemanager: ok")
			return nil
		}

		svc, err := sm.GetService(args[0], pingInterface)
		if err != nil {
			return err
		}
		defer svc.Close()

		if err := svc.Ping(); err != nil {
			return err
		}
		cmd.Printf("%s: ok\n", args[0])
		return nil
	},
}

func init() {
	pingCmd.Flags().StringVar(&pingInterface, "interface", "", "Interface token of the target service")
}
