package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	gemini "github.com/knowfox/geminid"
	"github.com/knowfox/geminid/gemtext"
)

func homePage(req *gemini.Request) (*gemini.Response, error) {
	doc := gemtext.NewDocument().
		AddHeading(gemtext.H1, "Capsule").
		AddBlankLine().
		AddText("Hello, world!").
		AddBlankLine().
		AddLinkWithoutLabel("/user").
		AddLink("/greet/stranger", "A greeting").
		AddLink("/files/", "Files")
	return gemini.Document(doc), nil
}

func userPage(req *gemini.Request) (*gemini.Response, error) {
	log.Printf("request: %s, user: %v", req.URL.Path, strings.Join(req.UserName(), " "))
	if req.Certificate() == nil {
		return gemini.NewResponse(gemini.ClientCertificateRequiredLossy("Authentication Required")), nil
	}
	doc := gemtext.NewDocument().
		AddHeading(gemtext.H1, req.Certificate().Subject.CommonName).
		AddUnorderedListItem("serial " + req.Certificate().SerialNumber.String()).
		AddUnorderedListItem("fingerprint " + req.CertificateHash()).
		AddUnorderedListItem("valid until " + req.Certificate().NotAfter.Format(time.RFC3339))
	return gemini.Document(doc), nil
}

func greetPage(req *gemini.Request) (*gemini.Response, error) {
	name := req.Param("name")
	if input, ok := req.Input(); ok && input != "" {
		name = input
	} else if name == "stranger" {
		return gemini.NewResponse(gemini.InputLossy("What is your name?")), nil
	}
	doc := gemtext.NewDocument().AddText(fmt.Sprintf("Hello, %s!", name))
	return gemini.Document(doc), nil
}

func newRouter(c *Config) *gemini.Router {
	router := gemini.NewRouter()
	router.HandleFunc("/", homePage)
	router.HandleFunc("/user", userPage)
	router.HandleFunc("/greet/:name", greetPage)
	if c.Root != "" {
		router.Handle("/files/*", gemini.FileServer(c.Root))
	}
	return router
}

func newServer(c *Config) *gemini.Server {
	return &gemini.Server{
		Addr:        c.Listen,
		Handler:     newRouter(c),
		MaxConns:    c.MaxConns,
		AllowProxy:  c.AllowProxy,
		LogRequests: c.LogRequests,
		Timeouts: gemini.Timeouts{
			Request:          c.Timeouts.Request,
			Response:         c.Timeouts.Response,
			ComplexBody:      c.Timeouts.ComplexBody,
			ComplexOverrides: c.Timeouts.ComplexOverrides,
		},
	}
}

func main() {
	c, err := loadConfig(os.Args[1:])
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("Loading capsule %v", c)

	server := newServer(c)
	log.Printf("Routes: %v", server.Handler.(*gemini.Router).Patterns())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("shutdown: %v", err)
		}
	}()

	log.Printf("Starting capsule on %v (max conns %s)", c.Listen, strconv.Itoa(c.MaxConns))
	err = server.ListenAndServeTLS(c.Cert, c.Key)
	if err != nil && !errors.Is(err, gemini.ErrServerClosed) {
		log.Fatal(err)
	}
}
