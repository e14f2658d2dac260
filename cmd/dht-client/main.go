// Command dht-client issues one get/put request against a DHT node
// (spec §4.1, §6): "<myIp> <serverCfgFile> <cmd> [key] [value]".
package main

import (
	"fmt"
	"os"

	"netlab/internal/dht"
)

func usage() {
	fmt.Fprintln(os.Stderr, "usage: dht-client <myIp:port> <serverCfgFile> <get|put> [key] [value]")
}

func main() {
	args := os.Args[1:]
	if len(args) < 3 {
		usage()
		os.Exit(1)
	}
	myAddr, cfgFile, cmd := args[0], args[1], args[2]

	serverAddr, err := readServerCfg(cfgFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read server cfg: %v\n", err)
		os.Exit(1)
	}

	cli, err := dht.NewClient(myAddr, serverAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "connect: %v\n", err)
		os.Exit(1)
	}
	defer cli.Close()

	switch cmd {
	case "get":
		if len(args) < 4 {
			usage()
			os.Exit(1)
		}
		value, found, err := cli.Get(args[3])
		if err != nil {
			fmt.Fprintf(os.Stderr, "get failed: %v\n", err)
			os.Exit(1)
		}
		if !found {
			fmt.Println("no match")
			return
		}
		fmt.Printf("success:%s\n", value)
	case "put":
		if len(args) < 5 {
			usage()
			os.Exit(1)
		}
		if err := cli.Put(args[3], args[4]); err != nil {
			fmt.Fprintf(os.Stderr, "put failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Println("success")
	default:
		usage()
		os.Exit(1)
	}
}

// readServerCfg reads the "ip port" line a DHT server wrote to its own
// cfgFile (spec §6).
func readServerCfg(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	var ip string
	var port int
	if _, err := fmt.Sscanf(string(data), "%s %d", &ip, &port); err != nil {
		return "", fmt.Errorf("malformed server cfg: %w", err)
	}
	return fmt.Sprintf("%s:%d", ip, port), nil
}
