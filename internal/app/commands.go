package app

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/rupesh-2/matrimonial-UI/internal/api"
	"github.com/rupesh-2/matrimonial-UI/internal/db"
	"github.com/rupesh-2/matrimonial-UI/internal/fakeapi"
	"github.com/rupesh-2/matrimonial-UI/internal/httpserver"
	"github.com/rupesh-2/matrimonial-UI/internal/models"
	"github.com/rupesh-2/matrimonial-UI/internal/ratelimit"
	"github.com/rupesh-2/matrimonial-UI/internal/realtime"
)

const timeLayout = "2006-01-02 15:04"

func newFlags(e *env, name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(e.out)
	return fs
}

func userIDArg(args []string) (int64, error) {
	if len(args) == 0 {
		return 0, errors.New("expected a user id")
	}
	id, err := strconv.ParseInt(args[0], 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid user id %q", args[0])
	}
	return id, nil
}

func runLogin(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "login")
	email := fs.String("email", "", "account email")
	password := fs.String("password", os.Getenv("MATRIMONY_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	c, err := e.Client(ctx)
	if err != nil {
		return err
	}
	identity, err := c.Session.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	e.printf("Signed in as %s (#%d)\n", identity.Name, identity.ID)
	return nil
}

func runRegister(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "register")
	var in api.RegisterInput
	fs.StringVar(&in.Name, "name", "", "full name")
	fs.StringVar(&in.Email, "email", "", "account email")
	fs.StringVar(&in.Password, "password", os.Getenv("MATRIMONY_PASSWORD"), "account password")
	fs.StringVar(&in.Gender, "gender", "", "gender")
	fs.IntVar(&in.Age, "age", 0, "age")
	fs.StringVar(&in.Location, "location", "", "city")
	if err := fs.Parse(args); err != nil {
		return err
	}
	in.PasswordConfirmation = in.Password

	c, err := e.Client(ctx)
	if err != nil {
		return err
	}
	identity, err := c.Session.Register(ctx, in)
	if err != nil {
		return err
	}
	e.printf("Welcome, %s (#%d)\n", identity.Name, identity.ID)
	return nil
}

func runLogout(ctx context.Context, e *env, _ []string) error {
	c, err := e.Client(ctx)
	if err != nil {
		return err
	}
	if err := c.Session.Logout(ctx); err != nil {
		return err
	}
	e.printf("Signed out\n")
	return nil
}

func runWhoami(ctx context.Context, e *env, _ []string) error {
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	id, _ := c.Session.Identity()
	e.printf("#%d %s <%s>", id.ID, id.Name, id.Email)
	if id.Location != "" {
		e.printf(" %s", id.Location)
	}
	e.printf("\n")
	return nil
}

func runFeed(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "feed")
	page := fs.Int("page", 1, "page to load")
	limit := fs.Int("limit", e.cfg.FeedPageSize, "candidates per page")
	var f models.Filter
	fs.IntVar(&f.MinAge, "min-age", 0, "minimum age")
	fs.IntVar(&f.MaxAge, "max-age", 0, "maximum age")
	fs.StringVar(&f.Gender, "gender", "", "gender")
	fs.IntVar(&f.MaxDistance, "max-distance", 0, "maximum distance")
	interests := fs.String("interests", "", "comma separated interests")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for _, i := range strings.Split(*interests, ",") {
		if i = strings.TrimSpace(i); i != "" {
			f.Interests = append(f.Interests, i)
		}
	}

	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if f.IsZero() {
		err = c.Feed.Fetch(ctx, *limit, *page)
	} else {
		err = c.Feed.FetchFiltered(ctx, f)
	}
	if err != nil {
		return err
	}

	snap := c.Feed.Snapshot()
	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tAGE\tLOCATION\tSCORE")
	for _, r := range snap.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%.0f\n", r.Candidate.ID, r.Candidate.Name, r.Candidate.Age, r.Candidate.Location, r.CompatibilityScore)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if snap.HasMore() {
		e.printf("page %d of %d, next: matrimony feed -page %d\n", snap.Page.CurrentPage, snap.Page.LastPage, snap.Page.CurrentPage+1)
	}
	return nil
}

func runLike(ctx context.Context, e *env, args []string) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	res, err := c.Like(ctx, id)
	if err != nil {
		return err
	}
	switch {
	case res.AlreadyLiked:
		e.printf("You already like #%d\n", id)
	case res.IsMatch && res.MatchedUser != nil:
		e.printf("It's a match with %s!\n", res.MatchedUser.Name)
	default:
		e.printf("Liked #%d\n", id)
	}
	return nil
}

func runUnlike(ctx context.Context, e *env, args []string) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Likes.Unlike(ctx, id); err != nil {
		return err
	}
	e.printf("Removed like for #%d\n", id)
	return nil
}

func pageFlag(e *env, name string, args []string) (int, []string, error) {
	fs := newFlags(e, name)
	page := fs.Int("page", 1, "page to load")
	if err := fs.Parse(args); err != nil {
		return 0, nil, err
	}
	return *page, fs.Args(), nil
}

func runLikes(ctx context.Context, e *env, args []string) error {
	page, _, err := pageFlag(e, "likes", args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Likes.List(ctx, page); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tLIKED AT")
	for _, l := range c.Likes.Snapshot().Likes {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", l.LikedUserID, l.LikedUser.Name, l.CreatedAt.Local().Format(timeLayout))
	}
	return tw.Flush()
}

func runMatches(ctx context.Context, e *env, args []string) error {
	page, _, err := pageFlag(e, "matches", args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Matches.Fetch(ctx, page); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tMATCHED AT\tONLINE")
	for _, m := range c.Matches.Snapshot().Matches {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%t\n", m.User.ID, m.User.Name, m.MatchedAt.Local().Format(timeLayout), m.User.IsOnline)
	}
	return tw.Flush()
}

func runUnmatch(ctx context.Context, e *env, args []string) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Matches.Remove(ctx, id); err != nil {
		return err
	}
	e.printf("Removed match #%d\n", id)
	return nil
}

func runConversations(ctx context.Context, e *env, args []string) error {
	page, _, err := pageFlag(e, "conversations", args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Messages.FetchConversations(ctx, page); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(e.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tUNREAD\tLAST MESSAGE")
	for _, conv := range c.Messages.Snapshot().Conversations {
		last := ""
		if conv.LastMessage != nil {
			last = conv.LastMessage.Content
		}
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\n", conv.Counterpart.ID, conv.Counterpart.Name, conv.UnreadCount, last)
	}
	return tw.Flush()
}

func runThread(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "thread")
	older := fs.Int("older", 0, "number of older pages to load")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := userIDArg(fs.Args())
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Messages.FetchThread(ctx, id); err != nil {
		return err
	}
	for range *older {
		if err := c.Messages.LoadOlder(ctx); err != nil {
			return err
		}
	}

	me, _ := c.Session.Identity()
	for _, m := range c.Messages.Snapshot().Thread {
		who := "them"
		if m.SenderID == me.ID {
			who = "me"
		}
		e.printf("[%s] %-4s %s\n", m.CreatedAt.Local().Format(timeLayout), who, m.Content)
	}
	return nil
}

func runSend(ctx context.Context, e *env, args []string) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	msg, err := c.Messages.Send(ctx, id, joinArgs(args[1:]))
	if err != nil {
		return err
	}
	e.printf("Sent message #%d\n", msg.ID)
	return nil
}

func runRead(ctx context.Context, e *env, args []string) error {
	id, err := userIDArg(args)
	if err != nil {
		return err
	}
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	if err := c.Messages.MarkRead(ctx, id); err != nil {
		return err
	}
	e.printf("Marked conversation with #%d as read\n", id)
	return nil
}

func runProfile(ctx context.Context, e *env, args []string) error {
	sub := "show"
	if len(args) > 0 {
		sub, args = args[0], args[1:]
	}

	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}

	switch sub {
	case "show":
		d, err := c.Profile.Fetch(ctx)
		if err != nil {
			return err
		}
		id, _ := c.Session.Identity()
		e.printf("#%d %s\n", id.ID, id.Name)
		e.printf("  age %d, %s, %s\n", d.Age, d.Gender, d.Location)
		if d.Occupation != "" || d.Education != "" {
			e.printf("  %s / %s\n", d.Occupation, d.Education)
		}
		if d.Bio != "" {
			e.printf("  %s\n", d.Bio)
		}
		if len(d.Interests) > 0 {
			e.printf("  interests: %s\n", strings.Join(d.Interests, ", "))
		}
		for _, p := range d.Photos {
			e.printf("  photo: %s\n", p)
		}
		return nil

	case "update":
		update, err := parseProfileUpdate(e, args)
		if err != nil {
			return err
		}
		if _, err := c.Profile.Update(ctx, update); err != nil {
			return err
		}
		e.printf("Profile updated\n")
		return nil

	case "preferences":
		fs := newFlags(e, "profile preferences")
		var p models.Preferences
		fs.IntVar(&p.MinAge, "min-age", 18, "minimum age")
		fs.IntVar(&p.MaxAge, "max-age", 99, "maximum age")
		fs.StringVar(&p.PreferredGender, "gender", "", "preferred gender")
		fs.IntVar(&p.MaxDistance, "max-distance", 0, "maximum distance")
		fs.BoolVar(&p.ShowOnlineOnly, "online-only", false, "only show users who are online")
		if err := fs.Parse(args); err != nil {
			return err
		}
		saved, err := c.Profile.UpdatePreferences(ctx, p)
		if err != nil {
			return err
		}
		e.printf("Preferences saved: ages %d-%d\n", saved.MinAge, saved.MaxAge)
		return nil

	case "upload":
		if len(args) == 0 {
			return errors.New("expected a photo file")
		}
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open photo: %w", err)
		}
		defer f.Close()
		location, err := c.Profile.UploadPhoto(ctx, args[0], f)
		if err != nil {
			return err
		}
		e.printf("Uploaded %s\n", location)
		return nil

	case "delete-photo":
		if len(args) == 0 {
			return errors.New("expected a photo url")
		}
		if err := c.Profile.DeletePhoto(ctx, args[0]); err != nil {
			return err
		}
		e.printf("Photo removed\n")
		return nil

	default:
		return fmt.Errorf("unknown profile command %q", sub)
	}
}

func parseProfileUpdate(e *env, args []string) (models.ProfileUpdate, error) {
	fs := newFlags(e, "profile update")
	name := fs.String("name", "", "display name")
	bio := fs.String("bio", "", "about me")
	age := fs.Int("age", 0, "age")
	gender := fs.String("gender", "", "gender")
	location := fs.String("location", "", "city")
	height := fs.Int("height", 0, "height in cm")
	occupation := fs.String("occupation", "", "occupation")
	education := fs.String("education", "", "education")
	interests := fs.String("interests", "", "comma separated interests")
	if err := fs.Parse(args); err != nil {
		return models.ProfileUpdate{}, err
	}

	var u models.ProfileUpdate
	fs.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "name":
			u.Name = name
		case "bio":
			u.Bio = bio
		case "age":
			u.Age = age
		case "gender":
			u.Gender = gender
		case "location":
			u.Location = location
		case "height":
			u.Height = height
		case "occupation":
			u.Occupation = occupation
		case "education":
			u.Education = education
		case "interests":
			u.Interests = []string{}
			for _, i := range strings.Split(*interests, ",") {
				if i = strings.TrimSpace(i); i != "" {
					u.Interests = append(u.Interests, i)
				}
			}
		}
	})
	return u, nil
}

func runPing(ctx context.Context, e *env, _ []string) error {
	c, err := e.Client(ctx)
	if err != nil {
		return err
	}
	st := c.Gateway.Ping(ctx)
	if !st.Online {
		return fmt.Errorf("%s is unreachable: %s", st.URL, st.Reason)
	}
	e.printf("%s is online (%s)\n", st.URL, st.Latency.Round(time.Millisecond))
	return nil
}

// printingReceiver echoes pushed messages and forwards them to the message store.
type printingReceiver struct {
	e    *env
	next realtime.Receiver
}

func (p printingReceiver) Receive(m models.Message) bool {
	p.e.printf("[%s] #%d: %s\n", m.CreatedAt.Local().Format(timeLayout), m.SenderID, m.Content)
	return p.next.Receive(m)
}

func runListen(ctx context.Context, e *env, _ []string) error {
	c, err := e.SignedIn(ctx)
	if err != nil {
		return err
	}
	listener, err := c.Listener(printingReceiver{e: e, next: c.Messages})
	if err != nil {
		return err
	}
	e.printf("Listening for messages, press Ctrl+C to stop\n")
	return listener.Run(ctx)
}

func runFakeServer(ctx context.Context, e *env, args []string) error {
	fs := newFlags(e, "fake-server")
	port := fs.Int("port", e.cfg.FakeServerPort, "port to listen on")
	seed := fs.Bool("seed", true, "create the demo accounts")
	if err := fs.Parse(args); err != nil {
		return err
	}

	srv := fakeapi.New(fakeapi.Options{
		SigningKey:   e.cfg.FakeServerToken,
		LoginLimiter: ratelimit.New(10, time.Minute, 5, throttleIdleTTL),
	})
	if *seed {
		if err := srv.Seed(fakeapi.DemoUsers()...); err != nil {
			return fmt.Errorf("seed demo users: %w", err)
		}
		e.logger.Info("seeded demo users", "password", fakeapi.DemoPassword)
	}

	hs := httpserver.New(*port, srv.Handler(e.logger), e.logger)
	ln, err := hs.Listen()
	if err != nil {
		return err
	}
	if addr, ok := ln.Addr().(*net.TCPAddr); ok {
		srv.SetPublicURL(fmt.Sprintf("http://127.0.0.1:%d", addr.Port))
	}
	e.printf("Fake API listening on %s\n", ln.Addr())
	return hs.Serve(ctx, ln)
}

func runMigrate(ctx context.Context, e *env, _ []string) error {
	pool, err := db.Connect(ctx, e.cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer pool.Close()

	applied, err := db.Migrate(ctx, pool)
	for _, v := range applied {
		e.printf("applied migration %s\n", v)
	}
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		e.printf("schema is up to date\n")
	}
	return nil
}
