// Command cipherise-info queries a Cipherise server for its compatibility
// metadata and reports it as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"path"
	"time"

	"github.com/forticode/cipherise-sdk-go/pkg/cipherise"
)

const usageFmt = `
Command Usage: %s [Flags] SERVER_URL
  Query a Cipherise server for version & compatibility information.

Flags:
------
`

type Cmd struct {
	Out       *json.Encoder
	ServerURL string
	Timeout   time.Duration
}

func parseFlags(progname string, args []string) *Cmd {
	cmd := Cmd{}

	flags := flag.NewFlagSet(progname, flag.ExitOnError)
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, usageFmt, path.Base(progname))
		flags.PrintDefaults()
	}

	var outPath string
	flags.StringVar(&outPath, "o", "-", `path where to save the server report`)

	flags.DurationVar(&cmd.Timeout, "t", 10*time.Second, `query timeout`)

	flags.Parse(args)

	if flags.NArg() != 1 {
		flags.Usage()
		os.Exit(2)
	}
	cmd.ServerURL = flags.Arg(0)

	// set cmd.Out
	var err error
	var outFile *os.File
	if "-" != outPath {
		outFile, err = os.OpenFile(outPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0644)
		if nil != err {
			log.Fatalf("Failed opening %s, got error %v", outPath, err)
		}
	} else {
		outFile = os.Stdout
	}
	enc := json.NewEncoder(outFile)
	enc.SetIndent("", "  ")
	cmd.Out = enc

	return &cmd
}

// report is the JSON shape of the command output.
type report struct {
	ServerURL     string `json:"serverUrl"`
	ProductType   string `json:"productType"`
	ServerVersion string `json:"serverVersion"`
	BuildVersion  string `json:"buildVersion,omitempty"`
	AppMinVersion string `json:"appMinVersion"`
	PayloadSize   int    `json:"payloadSize"`
}

func main() {
	cmd := parseFlags(os.Args[0], os.Args[1:])

	client, err := cipherise.NewClient(cmd.ServerURL)
	if nil != err {
		log.Fatalf("Failed client creation, got error %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cmd.Timeout)
	defer cancel()

	info, err := client.ServerInformation(ctx)
	if nil != err {
		log.Fatalf("Failed server info query, got error %v", err)
	}

	err = cmd.Out.Encode(report{
		ServerURL:     cmd.ServerURL,
		ProductType:   info.ProductType,
		ServerVersion: info.ServerVersion.String(),
		BuildVersion:  info.BuildVersion,
		AppMinVersion: info.AppMinVersion.String(),
		PayloadSize:   info.PayloadSize,
	})
	if nil != err {
		log.Fatalf("Failed serializing report, got error %v", err)
	}
}
