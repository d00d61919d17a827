// userctl manages the accounts behind the login route.
package main

import (
	"fmt"
	"os"

	"github.com/wetterklima/gridserver/internal/logger"
	"github.com/wetterklima/gridserver/internal/users"

	"github.com/jessevdk/go-flags"
	"github.com/rs/zerolog/log"
)

type Options struct {
	Logger logger.Logger `group:"Logger options"`

	DB       string `short:"d" long:"db"       env:"USER_DB" description:"Path to the user database" default:"users.db"`
	Add      string `short:"a" long:"add"      description:"Add a user with this name"`
	Password string `short:"p" long:"password" description:"Password for the new user"`
	Admin    bool   `long:"admin"              description:"Grant the new user admin rights"`
	Delete   string `long:"delete"             description:"Delete the user with this name"`
	List     bool   `short:"l" long:"list"     description:"List all users"`
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	opts.Logger.Setup()

	store, err := users.Open(opts.DB)
	if err != nil {
		log.Fatal().Err(err).Str("path", opts.DB).Msg("Failed to open user database")
	}
	defer func() { _ = store.Close() }()

	switch {
	case opts.Add != "":
		if opts.Password == "" {
			log.Fatal().Msg("A password is required when adding a user")
		}
		user, err := store.Create(opts.Add, opts.Password, opts.Admin)
		if err != nil {
			log.Fatal().Err(err).Str("name", opts.Add).Msg("Failed to create user")
		}
		log.Info().Str("name", user.Name).Str("public_id", user.PublicID).
			Bool("admin", user.Admin).Msg("User created")

	case opts.Delete != "":
		if err := store.Delete(opts.Delete); err != nil {
			log.Fatal().Err(err).Str("name", opts.Delete).Msg("Failed to delete user")
		}
		log.Info().Str("name", opts.Delete).Msg("User deleted")

	case opts.List:
		list, err := store.List()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to list users")
		}
		for _, user := range list {
			fmt.Printf("%s\t%s\tadmin=%t\n", user.PublicID, user.Name, user.Admin)
		}

	default:
		parser.WriteHelp(os.Stdout)
	}
}
