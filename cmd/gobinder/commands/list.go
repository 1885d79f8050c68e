package commands

import (
	"github.com/spf13/cobra"

	"github.com/marmos91/gobinder/pkg/servicemanager"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List services registered with the ServiceManager",
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

		sm, err := servicemanager.New(client)
		if err != nil {
			return err
		}

		names, err := sm.ListServices(servicemanager.DumpPriorityDefault)
		if err != nil {
			return err
		}

		for _, name := range names {
			cmd.Println(name)
		}
		return nil
	},
}
