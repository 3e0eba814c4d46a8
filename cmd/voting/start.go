package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/axiomesh/axiom-kit/log"
	"github.com/axiomesh/axiom-kit/storage"
	"github.com/axiomesh/axiom-kit/storage/leveldb"
	"github.com/axiomesh/voting"
	"github.com/axiomesh/voting/api"
	"github.com/axiomesh/voting/core"
	"github.com/axiomesh/voting/repo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

const shutdownTimeout = 10 * time.Second

type node struct {
	journal *core.Journal
	session *core.Session
	server  *api.Server
}

// newNode opens the journal, restores the session from it and builds the
// rpc server. Everything opened is closed again when a later step fails.
func newNode(ctx context.Context, cfg *repo.Config, logger logrus.FieldLogger) (*node, error) {
	var db storage.Storage
	if cfg.Journal.Enable {
		var err error
		db, err = leveldb.New(cfg.JournalPath())
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
	}
	journal, err := core.NewJournal(db, logger)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, fmt.Errorf("load journal: %w", err)
	}

	session, err := core.Restore(ctx, journal, cfg.DeployerAddress(),
		core.WithAdministrator(cfg.AdministratorAddress()),
		core.WithEmitter(journal),
		core.WithLogger(logger),
	)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("restore session: %w", err)
	}

	server, err := api.NewServer(cfg.RPC, session, journal, logger)
	if err != nil {
		journal.Close()
		return nil, fmt.Errorf("new rpc server error: %w", err)
	}

	return &node{journal: journal, session: session, server: server}, nil
}

func (n *node) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := n.server.Stop(ctx); err != nil {
		return err
	}
	return n.journal.Close()
}

func start(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	r, err := repo.Load(p)
	if err != nil {
		return err
	}

	err = log.Initialize(
		log.WithReportCaller(r.Config.Log.ReportCaller),
		log.WithPersist(true),
		log.WithFilePath(filepath.Join(r.Config.RepoRoot, repo.LogsDirName)),
		log.WithFileName(r.Config.Log.Filename),
		log.WithMaxAge(r.Config.Log.MaxAge),
		log.WithRotationTime(r.Config.Log.RotationTime),
	)
	if err != nil {
		return fmt.Errorf("log initialize: %w", err)
	}

	printVersion()

	logger := log.New()
	logger.SetLevel(log.ParseLevel(r.Config.Log.Level))

	n, err := newNode(ctx.Context, r.Config, logger)
	if err != nil {
		return err
	}
	session, server := n.session, n.server

	var wg sync.WaitGroup
	wg.Add(1)
	handleShutdown(n, &wg)

	if err := server.Start(); err != nil {
		n.journal.Close()
		return fmt.Errorf("start rpc server failed: %w", err)
	}

	fmt.Printf("session %s administered by %s, status %s\n", session.Address(), session.Owner(), session.WorkflowStatus())
	fmt.Println("=============Voting is ready=============")

	wg.Wait()

	return nil
}

func sessionAddress(c *repo.Config) common.Address {
	return crypto.CreateAddress(c.DeployerAddress(), 0)
}

func printVersion() {
	fmt.Printf("Voting version: %s-%s-%s\n", voting.CurrentVersion, voting.CurrentBranch, voting.CurrentCommit)
	fmt.Printf("App build date: %s\n", voting.BuildDate)
	fmt.Printf("System version: %s\n", voting.Platform)
	fmt.Printf("Golang version: %s\n", voting.GoVersion)
	fmt.Println()
}

func handleShutdown(n *node, wg *sync.WaitGroup) {
	var stop = make(chan os.Signal, 2)
	signal.Notify(stop, syscall.SIGTERM)
	signal.Notify(stop, syscall.SIGINT)

	go func() {
		<-stop
		fmt.Println("received interrupt signal, shutting down...")
		if err := n.Stop(); err != nil {
			fmt.Println("shutdown error:", err)
		}
		wg.Done()
		os.Exit(0)
	}()
}
