// Command newsd-ctl is the offline admin CLI: user/admin/moderator
// management and per-user limit overrides against the same sqlite
// database the server uses. Grounded on the teacher's cmd/usermgr/
// main.go: a flag-per-subcommand dispatch with a single switch, a TTY
// password prompt via golang.org/x/term, and one helper function per
// operation.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"golang.org/x/term"

	"github.com/nntpcore/newsd/internal/auth"
	"github.com/nntpcore/newsd/internal/config"
)

var appVersion = "-unset-"

func main() {
	config.AppVersion = appVersion

	var (
		dsn = flag.String("dsn", "newsd.db", "sqlite DSN shared with newsd-server")

		addUser = flag.Bool("adduser", false, "create a user (prompts for password)")
		delUser = flag.Bool("deluser", false, "remove a user")
		passwd  = flag.Bool("passwd", false, "set a user's password (prompts)")

		addAdmin = flag.Bool("addadmin", false, "grant admin to a user")
		delAdmin = flag.Bool("deladmin", false, "revoke admin from a user")

		addMod = flag.Bool("addmod", false, "grant moderator status over a group pattern")
		delMod = flag.Bool("delmod", false, "revoke moderator status over a group pattern")

		setLimits = flag.Bool("setlimits", false, "set per-user limit overrides")

		username = flag.String("username", "", "target username")
		pgpKey   = flag.String("pgpkey", "", "armored PGP public key (admin/moderator signature verification)")
		pattern  = flag.String("pattern", "*", "newsgroup wildmat pattern (addmod/delmod)")

		maxConns   = flag.Int64("maxconns", -1, "max concurrent connections (-1 leaves unset; 0 permits no connections, there is no unlimited value)")
		bwCap      = flag.Int64("bwcap", -1, "bandwidth cap in bytes (-1 leaves unset; 0 permits no transfer, there is no unlimited value)")
		bwWindow   = flag.Int64("bwwindow", -1, "bandwidth window in seconds (-1 leaves unset, 0 means lifetime)")
		postingSet = flag.Bool("posting", false, "with -setlimits, also set -postingallowed")
		posting    = flag.Bool("postingallowed", true, "whether the user may post (only applied with -posting)")
	)
	flag.Parse()

	anyAction := anySet(*addUser, *delUser, *passwd, *addAdmin, *delAdmin, *addMod, *delMod, *setLimits)
	if !anyAction {
		usage()
		os.Exit(1)
	}
	if *username == "" {
		log.Fatal("-username is required")
	}

	as, err := auth.Open(*dsn)
	if err != nil {
		log.Fatalf("open auth store: %v", err)
	}
	defer as.Close()

	switch {
	case *addUser:
		password := promptPassword()
		if err := as.AddUser(*username, password); err != nil {
			log.Fatalf("add user: %v", err)
		}
		fmt.Printf("user %q created\n", *username)

	case *delUser:
		if err := as.RemoveUser(*username); err != nil {
			log.Fatalf("remove user: %v", err)
		}
		fmt.Printf("user %q removed\n", *username)

	case *passwd:
		password := promptPassword()
		if err := as.UpdatePassword(*username, password); err != nil {
			log.Fatalf("update password: %v", err)
		}
		fmt.Printf("password updated for %q\n", *username)

	case *addAdmin:
		if err := as.AddAdmin(*username, *pgpKey); err != nil {
			log.Fatalf("add admin: %v", err)
		}
		fmt.Printf("%q is now an admin\n", *username)

	case *delAdmin:
		if err := as.RemoveAdmin(*username); err != nil {
			log.Fatalf("remove admin: %v", err)
		}
		fmt.Printf("%q is no longer an admin\n", *username)

	case *addMod:
		if err := as.AddModerator(*username, *pattern); err != nil {
			log.Fatalf("add moderator: %v", err)
		}
		fmt.Printf("%q is now a moderator of %q\n", *username, *pattern)

	case *delMod:
		if err := as.RemoveModerator(*username, *pattern); err != nil {
			log.Fatalf("remove moderator: %v", err)
		}
		fmt.Printf("%q is no longer a moderator of %q\n", *username, *pattern)

	case *setLimits:
		limits, err := as.GetLimits(*username)
		if err != nil {
			log.Fatalf("get limits: %v", err)
		}
		if *maxConns >= 0 {
			limits.MaxConnections = maxConns
		}
		if *bwCap >= 0 {
			limits.BandwidthCapBytes = bwCap
		}
		if *bwWindow >= 0 {
			limits.BandwidthWindowSeconds = bwWindow
		}
		if *postingSet {
			limits.PostingAllowed = posting
		}
		if err := as.SetLimits(*username, limits); err != nil {
			log.Fatalf("set limits: %v", err)
		}
		fmt.Printf("limits updated for %q\n", *username)

	default:
		usage()
		os.Exit(1)
	}
}

func anySet(flags ...bool) bool {
	for _, f := range flags {
		if f {
			return true
		}
	}
	return false
}

func promptPassword() string {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		log.Fatal("stdin is not a terminal; run interactively to supply a password")
	}
	fmt.Print("Enter password: ")
	pw1, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("read password: %v", err)
	}
	fmt.Print("Confirm password: ")
	pw2, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Println()
	if err != nil {
		log.Fatalf("read password confirmation: %v", err)
	}
	if string(pw1) != string(pw2) {
		log.Fatal("passwords do not match")
	}
	if len(pw1) < 8 {
		log.Fatal("password must be at least 8 characters long")
	}
	return string(pw1)
}

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s -username NAME [options]\n\n", os.Args[0])
	flag.PrintDefaults()
	fmt.Fprintf(os.Stderr, "\nExamples:\n")
	fmt.Fprintf(os.Stderr, "  %s -adduser -username alice\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s -addmod -username alice -pattern 'comp.*'\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "  %s -setlimits -username alice -maxconns 5\n", os.Args[0])
}
