package main

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/axiomesh/voting/api"
	"github.com/axiomesh/voting/client"
	"github.com/axiomesh/voting/core"
	"github.com/axiomesh/voting/repo"
	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v2"
)

var sessionCMD = &cli.Command{
	Name:  "session",
	Usage: "Call the voting session served by a running daemon",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:  "url",
			Usage: "Daemon rpc url, client.dial_url of the repo config by default",
		},
		&cli.StringFlag{
			Name:  "from",
			Usage: "Caller address",
		},
	},
	Subcommands: []*cli.Command{
		{
			Name:   "owner",
			Usage:  "Show the session administrator",
			Action: withClient(owner),
		},
		{
			Name:   "status",
			Usage:  "Show the workflow status",
			Action: withClient(status),
		},
		{
			Name:      "voter",
			Usage:     "Show a voter record, caller must be a voter",
			ArgsUsage: "<address>",
			Action:    withClient(getVoter),
		},
		{
			Name:      "proposal",
			Usage:     "Show a proposal, caller must be a voter",
			ArgsUsage: "<id>",
			Action:    withClient(getProposal),
		},
		{
			Name:   "winner",
			Usage:  "Show the winning proposal once votes are tallied",
			Action: withClient(winner),
		},
		{
			Name:      "add-voter",
			Usage:     "Register a voter",
			ArgsUsage: "<address>",
			Action:    withClient(addVoter),
		},
		{
			Name:   "start-proposals",
			Usage:  "Open proposals registration",
			Action: withClient(transition((*client.Client).StartProposalsRegistering)),
		},
		{
			Name:      "add-proposal",
			Usage:     "Submit a proposal",
			ArgsUsage: "<description>",
			Action:    withClient(addProposal),
		},
		{
			Name:   "end-proposals",
			Usage:  "Close proposals registration",
			Action: withClient(transition((*client.Client).EndProposalsRegistering)),
		},
		{
			Name:   "start-voting",
			Usage:  "Open the voting session",
			Action: withClient(transition((*client.Client).StartVotingSession)),
		},
		{
			Name:      "vote",
			Usage:     "Vote for a proposal",
			ArgsUsage: "<id>",
			Action:    withClient(vote),
		},
		{
			Name:   "end-voting",
			Usage:  "Close the voting session",
			Action: withClient(transition((*client.Client).EndVotingSession)),
		},
		{
			Name:   "tally",
			Usage:  "Tally the votes",
			Action: withClient(tally),
		},
		{
			Name:  "logs",
			Usage: "Print the session logs",
			Flags: []cli.Flag{
				&cli.Uint64Flag{
					Name:  "from-block",
					Usage: "First log sequence, 0 for the first log",
				},
				&cli.Uint64Flag{
					Name:  "to-block",
					Usage: "Last log sequence, 0 for the latest log",
				},
			},
			Action: withClient(logs),
		},
	},
}

func withClient(action func(ctx *cli.Context, c *client.Client) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		cfg, err := clientConfig(ctx)
		if err != nil {
			return err
		}
		url := ctx.String("url")
		if url == "" {
			url = cfg.DialUrl
		}

		c, err := client.Dial(ctx.Context, url, cfg.RetryLimit, cfg.RetryBackoff)
		if err != nil {
			return errors.Wrapf(err, "dial %s", url)
		}
		defer c.Close()

		if from := ctx.String("from"); from != "" {
			if !common.IsHexAddress(from) {
				return errors.Errorf("invalid --from address %q", from)
			}
			c = c.As(common.HexToAddress(from))
		}
		return action(ctx, c)
	}
}

// clientConfig reads the client section of the repo config, the defaults
// are used when no repo was generated.
func clientConfig(ctx *cli.Context) (repo.Client, error) {
	p, err := getRootPath(ctx)
	if err != nil {
		return repo.Client{}, err
	}
	if !repo.Exist(p) {
		return repo.DefaultConfig(p).Client, nil
	}
	r, err := repo.Load(p)
	if err != nil {
		return repo.Client{}, err
	}
	return r.Config.Client, nil
}

func addressArg(ctx *cli.Context) (common.Address, error) {
	arg := ctx.Args().First()
	if !common.IsHexAddress(arg) {
		return common.Address{}, errors.Errorf("invalid address %q", arg)
	}
	return common.HexToAddress(arg), nil
}

func idArg(ctx *cli.Context) (uint64, error) {
	id, err := strconv.ParseUint(ctx.Args().First(), 10, 64)
	if err != nil {
		return 0, errors.Wrap(err, "invalid proposal id")
	}
	return id, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

func owner(ctx *cli.Context, c *client.Client) error {
	addr, err := c.Owner(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Println(addr.Hex())
	return nil
}

func status(ctx *cli.Context, c *client.Client) error {
	s, err := c.WorkflowStatus(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Println(s)
	return nil
}

func getVoter(ctx *cli.Context, c *client.Client) error {
	addr, err := addressArg(ctx)
	if err != nil {
		return err
	}
	v, err := c.GetVoter(ctx.Context, addr)
	if err != nil {
		return err
	}
	return printJSON(v)
}

func getProposal(ctx *cli.Context, c *client.Client) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	p, err := c.GetOneProposal(ctx.Context, id)
	if err != nil {
		return err
	}
	return printJSON(p)
}

func winner(ctx *cli.Context, c *client.Client) error {
	id, err := c.WinningProposalID(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Println(id)
	return nil
}

func addVoter(ctx *cli.Context, c *client.Client) error {
	addr, err := addressArg(ctx)
	if err != nil {
		return err
	}
	return c.AddVoter(ctx.Context, addr)
}

func addProposal(ctx *cli.Context, c *client.Client) error {
	id, err := c.AddProposal(ctx.Context, ctx.Args().First())
	if err != nil {
		return err
	}
	fmt.Printf("proposal %d registered\n", id)
	return nil
}

func vote(ctx *cli.Context, c *client.Client) error {
	id, err := idArg(ctx)
	if err != nil {
		return err
	}
	return c.SetVote(ctx.Context, id)
}

func tally(ctx *cli.Context, c *client.Client) error {
	description, err := c.TallyVotes(ctx.Context)
	if err != nil {
		return err
	}
	fmt.Printf("winning proposal: %s\n", description)
	return nil
}

func transition(call func(*client.Client, context.Context) error) func(*cli.Context, *client.Client) error {
	return func(ctx *cli.Context, c *client.Client) error {
		if err := call(c, ctx.Context); err != nil {
			return err
		}
		s, err := c.WorkflowStatus(ctx.Context)
		if err != nil {
			return err
		}
		fmt.Printf("workflow status: %s\n", s)
		return nil
	}
}

func logs(ctx *cli.Context, c *client.Client) error {
	entries, err := c.GetLogs(ctx.Context, api.LogFilter{
		FromBlock: ctx.Uint64("from-block"),
		ToBlock:   ctx.Uint64("to-block"),
	})
	if err != nil {
		return err
	}
	for i := range entries {
		ev, err := core.DecodeLog(&entries[i])
		if err != nil {
			return err
		}
		fmt.Printf("#%d %T %s\n", entries[i].BlockNumber, ev, toJSON(ev))
	}
	return nil
}

func toJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		return err.Error()
	}
	return string(data)
}
