package main

import (
	"net/http"
	"os"
	"os/signal"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-hclog"
	"github.com/spf13/pflag"
	"github.com/wanderhub/wanderhub-chat/config"
	"github.com/wanderhub/wanderhub-chat/globals"
	"github.com/wanderhub/wanderhub-chat/persistence"
	"github.com/wanderhub/wanderhub-chat/ws"
)

var (
	configPath = pflag.StringP("config", "c", "", "path to config file or directory")
	addr       = pflag.String("addr", "localhost:8000", "ws service address (including port)")
	sslCert    = pflag.String("ssl-cert", "", "SSL cert for websocket (optional)")
	sslKey     = pflag.String("ssl-key", "", "SSL key for websocket (optional)")

	upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
)

func main() {
	flagSet := config.GetFlagSet()
	pflag.CommandLine.AddFlagSet(flagSet)
	pflag.Parse()

	globalConfig, err := config.ReadConfiguration(*configPath, flagSet)
	if err != nil {
		panic(err)
	}
	globals.AppLogger.SetLevel(hclog.LevelFromString(globalConfig.LogLevel))

	stores, err := persistence.NewStores(globalConfig)
	if err != nil {
		panic(err)
	}
	defer stores.Close()

	hub := ws.NewHub(stores.Memberships)
	typing := ws.NewTypingTracker()
	typing.Run()
	defer typing.Close()
	router := ws.NewRouter(hub, stores, typing, globalConfig.HistoryConfig.Limit())

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt)
	go func() {
		<-c
		globals.AppLogger.Info("interrupted, shutting down")
		typing.Close()
		stores.Close()
		os.Exit(0)
	}()

	muxRouter := mux.NewRouter()
	muxRouter.HandleFunc("/chat", func(w http.ResponseWriter, r *http.Request) {
		websocketHandler(w, r, hub, router)
	}).Methods(http.MethodGet)
	http.Handle("/", muxRouter)

	globals.AppLogger.Info("listening", "addr", *addr)
	if *sslCert != "" && *sslKey != "" {
		err = http.ListenAndServeTLS(*addr, *sslCert, *sslKey, nil)
	} else {
		err = http.ListenAndServe(*addr, nil)
	}
	globals.AppLogger.Error("stopped listening", "error", err)
}

// websocketHandler upgrades the request and runs the connection until it closes.
// The connection starts unauthenticated; the first useful event is auth.
func websocketHandler(w http.ResponseWriter, r *http.Request, hub *ws.Hub, router *ws.Router) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		globals.AppLogger.Error("websocket upgrade error", "error", err)
		return
	}
	defer conn.Close() //nolint

	client := ws.NewClient(hub, router, conn)
	go client.WriteLoop()
	go client.ReadLoop()
	<-client.Done()
	hub.Unregister(client)
}
