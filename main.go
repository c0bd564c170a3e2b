package main

import (
	"encoding/hex"
	"flag"
	"os"
	"strings"

	"github.com/golang/glog"

	"github.com/taktv6/bgpdecode/config"
	"github.com/taktv6/bgpdecode/packet"
)

var (
	configFile = flag.String("config", "", "YAML decoder configuration")
	withHeader = flag.Bool("header", false, "Input is a full BGP message including the 19 byte header")
)

func main() {
	flag.Parse()

	if flag.NArg() != 1 {
		glog.Exitf("Usage: %s [-config file] [-header] <hex>", os.Args[0])
	}

	opts := packet.DefaultOptions()
	if *configFile != "" {
		var err error
		opts, err = config.Load(*configFile)
		if err != nil {
			glog.Exitf("Unable to load config: %v", err)
		}
	}

	input := strings.Join(strings.Fields(flag.Arg(0)), "")
	buf, err := hex.DecodeString(input)
	if err != nil {
		glog.Exitf("Unable to decode hex input: %v", err)
	}

	dec := packet.NewDecoder(opts)
	if *withHeader {
		msg, err := dec.DecodeMessage(buf)
		if err != nil {
			glog.Errorf("Unable to decode BGP message: %v", err)
		}
		if msg == nil {
			os.Exit(1)
		}
		if msg.Header != nil {
			msg.Dump(os.Stdout)
		}
		return
	}

	u, err := dec.DecodeUpdate(buf)
	if err != nil {
		glog.Errorf("Unable to decode BGP update: %v", err)
	}
	u.Dump(os.Stdout)
}
