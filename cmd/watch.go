package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kilianp07/farmbridge/core/transport"
)

var watchCmd = &cobra.Command{
	Use:   "watch [DEVICE]",
	Short: "Print the telemetry, status and responses of a device, or of every device",
	Args:  cobra.MaximumNArgs(1),
	RunE:  watch,
}

func init() {
	watchCmd.Flags().StringVar(&cmdUsername, "username", "", "broker username of the operator")
	watchCmd.Flags().StringVar(&cmdPassword, "password", "", "broker password of the operator")
	rootCmd.AddCommand(watchCmd)
}

func printFrame(w io.Writer, m transport.Message) {
	fmt.Fprintf(w, "%s %s %s\n", m.Received.Format("15:04:05.000"), m.Topic, m.Payload)
}

func watch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c, err := newCommander(cmd)
	if err != nil {
		return err
	}
	defer c.Disconnect()

	var device string
	if len(args) == 1 {
		device = args[0]
	}
	frames := make(chan transport.Message, 64)
	if err := c.Watch(device, func(m transport.Message) {
		select {
		case frames <- m:
		default:
		}
	}); err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for {
		select {
		case <-ctx.Done():
			return nil
		case m := <-frames:
			printFrame(out, m)
		}
	}
}
