package commands

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/gobinder/internal/logger"
	"github.com/marmos91/gobinder/pkg/api"
	"github.com/marmos91/gobinder/pkg/parcel"
	"github.com/marmos91/gobinder/pkg/servicemanager"
)

var (
	serveName      string
	serveInterface string
	serveIsolated  bool
)

// echoFunction is the single function code of the hosted echo service.
const echoFunction = uint32(1)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Host an echo service on the binder bus",
	Long: `Register a service with the ServiceManager and serve incoming
transactions. The service implements a single function (code 1) that echos
the str16 argument back to the caller. Requires a privileged context that
is allowed to register services.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveName, "name", "myservice", "Service name to register")
	serveCmd.Flags().StringVar(&serveInterface, "interface", "com.example.IMyService", "Interface token to serve")
	serveCmd.Flags().BoolVar(&serveIsolated, "allow-isolated", true, "Allow isolated processes to call the service")
}

func runServe(cmd *cobra.Command, args []string) error {
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

	listener, err := sm.RegisterService(echoHandler, serveName, serveInterface,
		serveIsolated, servicemanager.DumpPriorityDefault)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.API.Enabled {
		srv := api.New(cfg.API, api.StaticLister{serveName})
		go func() {
			if err := srv.Start(ctx); err != nil {
				logger.Error("status api failed", logger.Err(err))
			}
		}()
	}

	logger.Info("serving", logger.KeyService, serveName, logger.KeyInterface, serveInterface)
	return listener.Run(ctx)
}

// echoHandler answers function 1 with status 0 and the echoed argument.
func echoHandler(code uint32, data *parcel.Parcel) (*parcel.Parcel, error) {
	switch code {
	case echoFunction:
		msg, err := data.ReadString16()
		if err != nil {
			return nil, err
		}
		reply := parcel.New()
		if err := reply.WriteUint32(0); err != nil {
			return nil, err
		}
		if err := reply.WriteString16(msg); err != nil {
			return nil, err
		}
		return reply, nil
	default:
		return nil, parcel.ErrBadEnumValue
	}
}
