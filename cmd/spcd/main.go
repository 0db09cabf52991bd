package main

//go-build: CGO_ENABLED=0

import (
	"flag"
	"log"

	"github.com/golang/glog"

	"github.com/robotalks/spc.go/pkg/config"
	"github.com/robotalks/spc.go/pkg/daemon"
	fx "github.com/robotalks/spc.go/pkg/framework"
)

func init() {
	config.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	conf := config.MustLoad()
	d, err := daemon.New(conf)
	if err != nil {
		log.Fatalln(err)
	}
	glog.Infof("station %s: %d gauges", conf.Station, len(conf.Gauges))
	runner := fx.NewRunner().HandleSignals().Go(d.Runnables()...)
	err = runner.Wait()
	if closeErr := d.Close(); closeErr != nil {
		glog.Errorf("close: %v", closeErr)
	}
	if err != nil {
		glog.Exitf("stopped: %v", err)
	}
}
