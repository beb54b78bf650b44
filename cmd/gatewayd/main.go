package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/common-nighthawk/go-figure"
	"github.com/jrsteele09/go-oauth-redirector/internal/config"
	"github.com/jrsteele09/go-oauth-redirector/internal/loader"
	"github.com/jrsteele09/go-oauth-redirector/server"
	"github.com/rs/zerolog"
)

func main() {
	log := zerolog.New(zerolog.NewConsoleWriter()).With().Timestamp().Logger()

	if err := run(log); err != nil {
		log.Fatal().Err(err).Msg("gatewayd exited")
	}
}

func run(log zerolog.Logger) (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			returnError = fmt.Errorf("panic recovered: %v", r)
		}
	}()

	env := config.EnvVars{}
	displayAppname(env.AppName())

	var lsn *server.Listener
	ld := loader.New(env.ConfigPath(), log, func(port int) {
		if lsn != nil {
			lsn.Rebind(port)
		}
	})
	if seconds, ok := env.PollPeriodSecondsOverride(); ok {
		ld.WithPollPeriodOverride(seconds)
	}
	ld.LoadOnce()

	gateway := server.New(log, ld, nil)
	lsn = server.NewListener(log, gateway.Handler())
	lsn.Rebind(ld.Snapshot().Port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go ld.Run(ctx, ld.SamplePeriod())

	waitForStopSignal()
	cancel()
	lsn.Shutdown()
	return nil
}

func waitForStopSignal() {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
	fmt.Println()
}
