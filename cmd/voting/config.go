package main

import (
	"fmt"
	"os"

	"github.com/axiomesh/voting/repo"
	"github.com/urfave/cli/v2"
)

var configCMD = &cli.Command{
	Name:  "config",
	Usage: "The config manage commands",
	Subcommands: []*cli.Command{
		{
			Name:  "generate",
			Usage: "Generate default config",
			Flags: []cli.Flag{
				&cli.StringFlag{
					Name:  "deployer",
					Usage: "Address deploying the session",
					Value: repo.DefaultDeployer,
				},
				&cli.StringFlag{
					Name:  "administrator",
					Usage: "Session administrator, the deployer when empty",
				},
			},
			Action: generate,
		},
		{
			Name:   "show",
			Usage:  "Show the complete config processed by the environment variable",
			Action: show,
		},
		{
			Name:   "check",
			Usage:  "Check if the config file is valid",
			Action: check,
		},
		{
			Name:   "rewrite-with-env",
			Usage:  "Rewrite config with env",
			Action: rewriteWithEnv,
		},
	},
}

func generate(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	if repo.Exist(p) {
		fmt.Println("voting repo already exists")
		return nil
	}

	if err := os.MkdirAll(p, 0755); err != nil {
		return err
	}

	cfg := repo.DefaultConfig(p)
	cfg.Session.Deployer = ctx.String("deployer")
	cfg.Session.Administrator = ctx.String("administrator")
	if err := cfg.Validate(); err != nil {
		return err
	}

	r := &repo.Repo{
		Config: cfg,
	}
	if err := r.Flush(); err != nil {
		return err
	}

	fmt.Printf("initializing voting at %s\n", p)
	return nil
}

func show(ctx *cli.Context) error {
	r, err := loadExistingRepo(ctx)
	if err != nil || r == nil {
		return err
	}
	str, err := repo.MarshalConfig(r.Config)
	if err != nil {
		return err
	}
	fmt.Println(str)
	return nil
}

func check(ctx *cli.Context) error {
	p, err := getRootPath(ctx)
	if err != nil {
		return err
	}
	if !repo.Exist(p) {
		fmt.Println("voting repo not exist")
		return nil
	}

	r, err := repo.Load(p)
	if err != nil {
		fmt.Println("config file format error, please check:", err)
		os.Exit(1)
		return nil
	}

	fmt.Printf("deployer: %s\n", r.Config.DeployerAddress())
	fmt.Printf("administrator: %s\n", r.Config.AdministratorAddress())
	fmt.Printf("session address: %s\n", sessionAddress(r.Config))
	return nil
}

func rewriteWithEnv(ctx *cli.Context) error {
	r, err := loadExistingRepo(ctx)
	if err != nil || r == nil {
		return err
	}
	return r.Flush()
}

// loadExistingRepo returns nil without error when the repo was never generated.
func loadExistingRepo(ctx *cli.Context) (*repo.Repo, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return nil, err
	}
	if !repo.Exist(p) {
		fmt.Println("voting repo not exist")
		return nil, nil
	}
	return repo.Load(p)
}

func getRootPath(ctx *cli.Context) (string, error) {
	p := ctx.String("repo")

	var err error
	if p == "" {
		p, err = repo.LoadRepoRootFromEnv(p)
		if err != nil {
			return "", err
		}
	}
	return p, nil
}
