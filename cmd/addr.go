package cmd

import (
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

const defaultServeAddr = "127.0.0.1:8080"

// serveAddr resolves the listen address. A positional argument wins over the
// --addr flag, supporting both:
//   - docsmith serve :8080
//   - docsmith serve --addr :8080
func serveAddr(cmd *cobra.Command, args []string) string {
	if len(args) > 0 {
		return args[0]
	}
	addr, _ := cmd.Flags().GetString("addr")
	return addr
}

// validateAddr validates the server address format.
func validateAddr(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be in host:port format: %w", err)
	}

	if host != "" && host != "localhost" {
		if ip := net.ParseIP(host); ip == nil {
			if strings.ContainsAny(host, " \t\n") {
				return fmt.Errorf("invalid host: %s", host)
			}
		}
	}

	if port == "" {
		return fmt.Errorf("port is required")
	}
	portNum, err := strconv.Atoi(port)
	if err != nil {
		return fmt.Errorf("port must be numeric: %w", err)
	}
	if portNum < 0 || portNum > 65535 {
		return fmt.Errorf("port must be 0-65535 (0 = auto-assign), got %d", portNum)
	}

	return nil
}
