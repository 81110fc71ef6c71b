package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	gojwt "github.com/golang-jwt/jwt/v5"
	"golang.org/x/term"

	"github.com/docopt/docopt-go"

	"opencollab.network/collab/collab"
)

const CollabCtlVersion = "0.0.1"

var Out *log.Logger
var Err *log.Logger

func init() {
	Out = log.New(os.Stdout, "", 0)
	Err = log.New(os.Stderr, "", log.Ldate|log.Ltime|log.Lshortfile)
}

func main() {
	usage := fmt.Sprintf(`Collab directory control.

The default config is read from:
    %s

Usage:
    collabctl dashboard [--config=<config>]
    collabctl profile show [--config=<config>] [<identity>]
    collabctl profile create [--config=<config>]
        --username=<username>
        --display_name=<display_name>
        [--role=<role>]
        [--bio=<bio>]
        [--contact=<contact>]
        [--github=<github>]
    collabctl profile update [--config=<config>]
        [--username=<username>]
        [--display_name=<display_name>]
        [--role=<role>]
        [--bio=<bio>]
        [--contact=<contact>]
        [--github=<github>]
    collabctl profile set-metadata [--config=<config>] <file>
    collabctl profile delete [--config=<config>]
    collabctl people [--config=<config>]
    collabctl project list [--config=<config>] [--mine]
    collabctl project show [--config=<config>] <address>
    collabctl project create [--config=<config>]
        --name=<name>
        --description=<description>
        [--tech=<tech>]
        [--role_seats=<role_seats>]
        [--closed]
    collabctl project close [--config=<config>] <address>
    collabctl project reopen [--config=<config>] <address>
    collabctl project delete [--config=<config>] <address>
    collabctl request show [--config=<config>] <request>
    collabctl request send [--config=<config>] <project>
        --message=<message>
        [--role=<role>]
    collabctl request update [--config=<config>] <request>
        --message=<message>
        [--role=<role>]
    collabctl request accept [--config=<config>] <request> [--reply=<reply>]
    collabctl request reject [--config=<config>] <request> [--reply=<reply>]
    collabctl request review [--config=<config>] <request>
    collabctl request withdraw [--config=<config>] <request>
    collabctl request delete [--config=<config>] <request>
    collabctl inbox [--config=<config>] [--watch]
    collabctl acknowledge [--config=<config>]

Options:
    -h --help                        Show this screen.
    --version                        Show version.
    --config=<config>                Config file path.
    --username=<username>
    --display_name=<display_name>
    --role=<role>                    Role, e.g. frontend, backend.
    --bio=<bio>
    --contact=<contact>
    --github=<github>
    --name=<name>
    --description=<description>
    --tech=<tech>                    Comma separated tech stack.
    --role_seats=<role_seats>        Comma separated role:seats pairs.
    --closed                         Create the project closed to collaboration.
    --mine                           Only projects created by you.
    --message=<message>
    --reply=<reply>
    --watch                          Keep polling and print changes as they arrive.`,
		collab.DefaultConfigPath(),
	)

	opts, err := docopt.ParseArgs(usage, os.Args[1:], CollabCtlVersion)
	if err != nil {
		panic(err)
	}

	if dashboard_, _ := opts.Bool("dashboard"); dashboard_ {
		dashboard(opts)
	} else if profile_, _ := opts.Bool("profile"); profile_ {
		if show_, _ := opts.Bool("show"); show_ {
			profileShow(opts)
		} else if create_, _ := opts.Bool("create"); create_ {
			profileCreate(opts)
		} else if update_, _ := opts.Bool("update"); update_ {
			profileUpdate(opts)
		} else if setMetadata_, _ := opts.Bool("set-metadata"); setMetadata_ {
			profileSetMetadata(opts)
		} else if delete_, _ := opts.Bool("delete"); delete_ {
			profileDelete(opts)
		}
	} else if people_, _ := opts.Bool("people"); people_ {
		people(opts)
	} else if project_, _ := opts.Bool("project"); project_ {
		if list_, _ := opts.Bool("list"); list_ {
			projectList(opts)
		} else if show_, _ := opts.Bool("show"); show_ {
			projectShow(opts)
		} else if create_, _ := opts.Bool("create"); create_ {
			projectCreate(opts)
		} else if close_, _ := opts.Bool("close"); close_ {
			projectSetOpen(opts, false)
		} else if reopen_, _ := opts.Bool("reopen"); reopen_ {
			projectSetOpen(opts, true)
		} else if delete_, _ := opts.Bool("delete"); delete_ {
			projectDelete(opts)
		}
	} else if request_, _ := opts.Bool("request"); request_ {
		if show_, _ := opts.Bool("show"); show_ {
			requestShow(opts)
		} else if send_, _ := opts.Bool("send"); send_ {
			requestSend(opts)
		} else if update_, _ := opts.Bool("update"); update_ {
			requestUpdate(opts)
		} else if accept_, _ := opts.Bool("accept"); accept_ {
			requestDecide(opts, collab.RequestStatusAccepted)
		} else if reject_, _ := opts.Bool("reject"); reject_ {
			requestDecide(opts, collab.RequestStatusRejected)
		} else if review_, _ := opts.Bool("review"); review_ {
			requestDecide(opts, collab.RequestStatusUnderReview)
		} else if withdraw_, _ := opts.Bool("withdraw"); withdraw_ {
			requestWithdraw(opts)
		} else if delete_, _ := opts.Bool("delete"); delete_ {
			requestDelete(opts)
		}
	} else if inbox_, _ := opts.Bool("inbox"); inbox_ {
		inbox(opts)
	} else if acknowledge_, _ := opts.Bool("acknowledge"); acknowledge_ {
		acknowledge(opts)
	}
}

// session bundles everything one command invocation needs
type session struct {
	ctx      context.Context
	cancel   context.CancelFunc
	config   *collab.Config
	viewer   collab.Identity
	gateway  *collab.GatewayClient
	store    collab.LocalStore
	bus      *collab.EventBus
	viewSync *collab.ViewSync
}

func newSession(opts docopt.Opts) *session {
	configPath, err := opts.String("--config")
	if err != nil {
		configPath = collab.DefaultConfigPath()
	}

	config, err := collab.LoadConfig(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			config = collab.DefaultConfig()
		} else {
			Err.Fatalf("Could not read config (%s).", err)
		}
	}

	sessionToken := readSessionToken(config)
	viewer := identityFromSessionToken(sessionToken)

	cancelCtx, cancel := context.WithCancel(context.Background())

	gateway := collab.NewGatewayClientWithDefaults(cancelCtx, config.GatewayUrl, config.SubscribeUrl)
	gateway.SetSessionToken(sessionToken)

	store, err := config.OpenStore()
	if err != nil {
		Err.Fatalf("Could not open local store (%s).", err)
	}

	bus := collab.NewEventBus()
	viewSync := collab.NewViewSyncWithDefaults(cancelCtx, viewer, gateway, store, bus)

	return &session{
		ctx:      cancelCtx,
		cancel:   cancel,
		config:   config,
		viewer:   viewer,
		gateway:  gateway,
		store:    store,
		bus:      bus,
		viewSync: viewSync,
	}
}

func (self *session) close() {
	self.viewSync.Close()
	self.gateway.Close()
	self.store.Close()
	self.cancel()
}

func (self *session) blobStore() collab.BlobStore {
	return collab.NewCachingBlobStore(collab.NewGatewayBlobStore(self.config.BlobUrl), self.store)
}

func readSessionToken(config *collab.Config) string {
	if config.SessionTokenPath != "" {
		tokenBytes, err := os.ReadFile(config.SessionTokenPath)
		if err == nil {
			return strings.TrimSpace(string(tokenBytes))
		}
		Err.Printf("Could not read session token file (%s).", err)
	}

	fmt.Fprintf(os.Stderr, "Session token: ")
	tokenBytes, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintf(os.Stderr, "\n")
	if err != nil {
		Err.Fatalf("Could not read session token (%s).", err)
	}
	return strings.TrimSpace(string(tokenBytes))
}

// the gateway verifies the token. Locally it is only parsed for the
// identity claim so reads and derivations run as the right viewer.
func identityFromSessionToken(sessionToken string) collab.Identity {
	claims := gojwt.MapClaims{}
	gojwt.NewParser().ParseUnverified(sessionToken, claims)

	tokenIdentity, ok := claims["identity"]
	if !ok {
		Err.Fatalf("Session token does not have an identity.")
	}
	switch v := tokenIdentity.(type) {
	case string:
		identity, err := collab.ParseIdentity(v)
		if err != nil {
			Err.Fatalf("Session token has an invalid identity (%s).", err)
		}
		return identity
	default:
		Err.Fatalf("Session token has an invalid identity (%T).", v)
		return collab.Identity{}
	}
}

func fatalIfErr(err error) {
	if err == nil {
		return
	}
	if collab.IsCanceled(err) {
		Out.Printf("Canceled.")
		os.Exit(0)
	}
	Err.Fatalf("%s", err)
}

func dashboard(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	snapshot, err := session.viewSync.Refresh(session.ctx)
	fatalIfErr(err)

	if snapshot.ProfileLegacy {
		Out.Printf("Your profile uses an unsupported legacy record and cannot be displayed.")
		return
	}
	if snapshot.Profile == nil {
		Out.Printf("No profile yet. Run `collabctl profile create` to join the directory.")
		return
	}

	Out.Printf("%s (@%s)", snapshot.Profile.DisplayName, snapshot.Profile.Username)
	Out.Printf("")
	Out.Printf("projects created:       %d", snapshot.Stats.ProjectsCreated)
	Out.Printf("pending reviews:        %d", snapshot.Stats.PendingReviews)
	Out.Printf("active collaborations:  %d", snapshot.Stats.ActiveCollaborations)
	Out.Printf("applications sent:      %d", snapshot.Stats.ApplicationsSent)
	if 0 < snapshot.Badges.Total() {
		Out.Printf("")
		Out.Printf("unread: %d received, %d responses", snapshot.Badges.PendingReceived, snapshot.Badges.UnreadResponses)
	}
}

func profileShow(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	identity := session.viewer
	if identityStr, err := opts.String("<identity>"); err == nil && identityStr != "" {
		parsed, parseErr := collab.ParseIdentity(identityStr)
		if parseErr != nil {
			Err.Fatalf("Invalid identity (%s).", parseErr)
		}
		identity = parsed
	}

	profile, legacy, err := session.viewSync.GetProfile(session.ctx, identity, collab.ConsistencyProcessed)
	fatalIfErr(err)
	if legacy {
		if profile != nil {
			Out.Printf("%s (unsupported legacy record)", profile.Username)
		} else {
			Out.Printf("Unsupported legacy record at %s.", identity)
		}
		return
	}
	if profile == nil {
		Out.Printf("No profile at %s.", identity)
		return
	}

	Out.Printf("%s (@%s)", profile.DisplayName, profile.Username)
	if profile.Role != "" {
		Out.Printf("role:    %s", profile.Role)
	}
	if profile.Bio != "" {
		Out.Printf("bio:     %s", profile.Bio)
	}
	if profile.Contact != "" {
		Out.Printf("contact: %s", profile.Contact)
	}
	if profile.Github != "" {
		Out.Printf("github:  %s", profile.Github)
	}
	if profile.MetadataCid != "" {
		Out.Printf("cid:     %s", profile.MetadataCid)
	}
}

func profileFromOpts(opts docopt.Opts, profile *collab.Profile) {
	if username, err := opts.String("--username"); err == nil {
		profile.Username = username
	}
	if displayName, err := opts.String("--display_name"); err == nil {
		profile.DisplayName = displayName
	}
	if role, err := opts.String("--role"); err == nil {
		profile.Role = role
	}
	if bio, err := opts.String("--bio"); err == nil {
		profile.Bio = bio
	}
	if contact, err := opts.String("--contact"); err == nil {
		profile.Contact = contact
	}
	if github, err := opts.String("--github"); err == nil {
		profile.Github = github
	}
}

func profileCreate(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	profile := &collab.Profile{}
	profileFromOpts(opts, profile)

	fatalIfErr(session.viewSync.CreateProfile(session.ctx, profile))
	Out.Printf("Profile created at %s.", collab.ProfileAddress(session.viewer))
}

func profileUpdate(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	profile, legacy, err := session.viewSync.GetProfile(session.ctx, session.viewer, collab.ConsistencyConfirmed)
	fatalIfErr(err)
	if legacy {
		Err.Fatalf("Your profile uses an unsupported legacy record.")
	}
	if profile == nil {
		Err.Fatalf("No profile to update.")
	}

	profileFromOpts(opts, profile)
	fatalIfErr(session.viewSync.UpdateProfile(session.ctx, profile))
	Out.Printf("Profile updated.")
}

// upload a metadata payload to the blob store and link its content id to
// the profile
func profileSetMetadata(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	filePath, _ := opts.String("<file>")
	data, err := os.ReadFile(filePath)
	if err != nil {
		Err.Fatalf("Could not read %s (%s).", filePath, err)
	}

	cid, err := session.blobStore().Put(session.ctx, data)
	fatalIfErr(err)

	profile, legacy, err := session.viewSync.GetProfile(session.ctx, session.viewer, collab.ConsistencyConfirmed)
	fatalIfErr(err)
	if legacy {
		Err.Fatalf("Your profile uses an unsupported legacy record.")
	}
	if profile == nil {
		Err.Fatalf("No profile to attach metadata to.")
	}

	profile.MetadataCid = cid
	fatalIfErr(session.viewSync.UpdateProfile(session.ctx, profile))
	Out.Printf("Metadata attached (%s).", cid)
}

func profileDelete(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	fatalIfErr(session.viewSync.DeleteProfile(session.ctx))
	Out.Printf("Profile deleted.")
}

func people(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	profiles, err := session.viewSync.ListProfiles(session.ctx)
	fatalIfErr(err)

	if len(profiles) == 0 {
		Out.Printf("No profiles.")
		return
	}
	for _, profile := range profiles {
		line := fmt.Sprintf("%s  @%s  %s", profile.Identity, profile.Username, profile.DisplayName)
		if profile.Role != "" {
			line = fmt.Sprintf("%s (%s)", line, profile.Role)
		}
		Out.Printf("%s", line)
	}
}

func projectList(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	snapshot, err := session.viewSync.Refresh(session.ctx)
	fatalIfErr(err)

	projects := snapshot.Projects
	if mine, _ := opts.Bool("--mine"); mine {
		// server-side filter on the creator offset
		projects, err = session.viewSync.ListProjectsBy(session.ctx, session.viewer)
		fatalIfErr(err)
	}

	count := 0
	for _, project := range projects {
		flags := snapshot.FlagsFor(project)
		count += 1

		marker := " "
		if flags.CanRequestCollab {
			marker = "*"
		}
		Out.Printf("%s %s  %s [%s]", marker, project.Address, project.Name, project.Status)
		if 0 < len(flags.OpenRoles) {
			Out.Printf("    open roles: %s", strings.Join(flags.OpenRoles, ", "))
		}
	}
	if count == 0 {
		Out.Printf("No projects.")
	}
}

func projectShow(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	address := requireAddressOpt(opts, "<address>")

	project, legacy, err := session.viewSync.GetProject(session.ctx, address)
	fatalIfErr(err)
	if project == nil {
		Out.Printf("No project at %s.", address)
		return
	}
	if legacy {
		Out.Printf("%s (unsupported legacy record)", project.Name)
		return
	}

	Out.Printf("%s [%s]", project.Name, project.Status)
	Out.Printf("creator: %s", project.Creator)
	Out.Printf("%s", project.Description)
	if 0 < len(project.TechStack) {
		Out.Printf("tech: %s", strings.Join(project.TechStack, ", "))
	}
	for _, role := range project.Roles {
		Out.Printf("role %s: %d/%d seats filled", role.Role, role.Accepted, role.Needed)
	}
	if project.OpenToCollab {
		Out.Printf("open to collaboration")
	} else {
		Out.Printf("closed to collaboration")
	}
}

func projectCreate(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	name, _ := opts.String("--name")
	description, _ := opts.String("--description")
	closed, _ := opts.Bool("--closed")

	project := &collab.Project{
		Name:         name,
		Description:  description,
		Status:       collab.ProjectStatusActive,
		OpenToCollab: !closed,
	}
	if tech, err := opts.String("--tech"); err == nil && tech != "" {
		project.TechStack = strings.Split(tech, ",")
	}
	if roleSeats, err := opts.String("--role_seats"); err == nil && roleSeats != "" {
		roles, parseErr := parseRoleSeats(roleSeats)
		if parseErr != nil {
			Err.Fatalf("Invalid role_seats (%s).", parseErr)
		}
		project.Roles = roles
	}

	address, err := session.viewSync.CreateProject(session.ctx, project)
	fatalIfErr(err)
	Out.Printf("Project created at %s.", address)
}

// "frontend:2,backend:1" -> role requirements
func parseRoleSeats(roleSeats string) ([]collab.RoleRequirement, error) {
	roles := []collab.RoleRequirement{}
	for _, pair := range strings.Split(roleSeats, ",") {
		role, seats, found := strings.Cut(strings.TrimSpace(pair), ":")
		if !found {
			return nil, fmt.Errorf("expected role:seats, got %q", pair)
		}
		var needed int
		if _, err := fmt.Sscanf(seats, "%d", &needed); err != nil {
			return nil, fmt.Errorf("expected a seat count, got %q", seats)
		}
		roles = append(roles, collab.RoleRequirement{
			Role:   role,
			Needed: needed,
		})
	}
	return roles, nil
}

func projectSetOpen(opts docopt.Opts, open bool) {
	session := newSession(opts)
	defer session.close()

	address := requireAddressOpt(opts, "<address>")
	if open {
		fatalIfErr(session.viewSync.ReopenProject(session.ctx, address))
		Out.Printf("Project reopened.")
	} else {
		fatalIfErr(session.viewSync.CloseProject(session.ctx, address))
		Out.Printf("Project closed to collaboration.")
	}
}

func projectDelete(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	address := requireAddressOpt(opts, "<address>")
	fatalIfErr(session.viewSync.DeleteProject(session.ctx, address))
	Out.Printf("Project deleted.")
}

func requestShow(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	address := requireAddressOpt(opts, "<request>")

	request, legacy, err := session.viewSync.GetRequest(session.ctx, address)
	fatalIfErr(err)
	if request == nil {
		Out.Printf("No request at %s.", address)
		return
	}
	if legacy {
		Out.Printf("%s (unsupported legacy record)", address)
		return
	}

	printRequest(session.viewer, request)
	Out.Printf("from:    %s", request.From)
	Out.Printf("to:      %s", request.To)
	Out.Printf("project: %s", request.Project)
}

func requestSend(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	project := requireAddressOpt(opts, "<project>")
	message, _ := opts.String("--message")
	role, _ := opts.String("--role")

	address, err := session.viewSync.SendRequest(session.ctx, project, message, role)
	fatalIfErr(err)
	Out.Printf("Request sent at %s.", address)
}

func requestUpdate(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	request := requireAddressOpt(opts, "<request>")
	message, _ := opts.String("--message")
	role, _ := opts.String("--role")

	fatalIfErr(session.viewSync.UpdateRequest(session.ctx, request, message, role))
	Out.Printf("Request updated.")
}

func requestDecide(opts docopt.Opts, next collab.RequestStatus) {
	session := newSession(opts)
	defer session.close()

	request := requireAddressOpt(opts, "<request>")
	reply, _ := opts.String("--reply")

	// the decision pre-filter needs a current snapshot
	_, err := session.viewSync.Refresh(session.ctx)
	fatalIfErr(err)

	switch next {
	case collab.RequestStatusAccepted:
		fatalIfErr(session.viewSync.AcceptRequest(session.ctx, request, reply))
		Out.Printf("Request accepted.")
	case collab.RequestStatusRejected:
		fatalIfErr(session.viewSync.RejectRequest(session.ctx, request, reply))
		Out.Printf("Request rejected.")
	case collab.RequestStatusUnderReview:
		fatalIfErr(session.viewSync.MarkUnderReview(session.ctx, request))
		Out.Printf("Request marked under review.")
	}
}

func requestWithdraw(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	request := requireAddressOpt(opts, "<request>")
	fatalIfErr(session.viewSync.WithdrawRequest(session.ctx, request))
	Out.Printf("Request withdrawn.")
}

func requestDelete(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	request := requireAddressOpt(opts, "<request>")
	fatalIfErr(session.viewSync.DeleteRequest(session.ctx, request))
	Out.Printf("Request deleted.")
}

func inbox(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	watch, _ := opts.Bool("--watch")

	if watch {
		unsub := session.bus.Subscribe(func(notification *collab.Notification) {
			printNotification(notification)
		})
		defer unsub()
	}

	snapshot, err := session.viewSync.Refresh(session.ctx)
	fatalIfErr(err)
	printInbox(session.viewer, snapshot)

	if !watch {
		return
	}

	poller := collab.NewPoller(session.ctx, session.viewSync, &collab.PollerSettings{
		PollInterval:  session.config.PollInterval(),
		DebounceDelay: collab.DefaultPollerSettings().DebounceDelay,
	})
	defer poller.Close()
	if err := poller.WatchChanges(); err != nil {
		Err.Printf("Change feed unavailable, polling only (%s).", err)
	}
	go poller.Run()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
}

func printInbox(viewer collab.Identity, snapshot *collab.Snapshot) {
	received := snapshot.Requests.AllReceived()
	sent := snapshot.Requests.AllSent()

	Out.Printf("received (%d):", len(received))
	for _, request := range received {
		printRequest(viewer, request)
	}
	Out.Printf("sent (%d):", len(sent))
	for _, request := range sent {
		printRequest(viewer, request)
	}
}

func printRequest(viewer collab.Identity, request *collab.CollaborationRequest) {
	line := fmt.Sprintf("  %s [%s] %s", request.Address, request.Status, request.Message)
	if request.Role != "" {
		line = fmt.Sprintf("%s (role %s)", line, request.Role)
	}
	if request.Reply != "" {
		line = fmt.Sprintf("%s reply: %s", line, request.Reply)
	}
	actions := request.ActionsFor(viewer)
	if 0 < len(actions) {
		actionStrs := []string{}
		for _, action := range actions {
			actionStrs = append(actionStrs, string(action))
		}
		line = fmt.Sprintf("%s [%s]", line, strings.Join(actionStrs, " "))
	}
	Out.Printf("%s", line)
}

func printNotification(notification *collab.Notification) {
	switch notification.Kind {
	case collab.NotificationRequestReceived:
		Out.Printf("! new request on your project: %s", notification.Message)
	case collab.NotificationRequestUnderReview:
		Out.Printf("! your request is under review")
	case collab.NotificationRequestAccepted:
		Out.Printf("! your request was accepted: %s", notification.Message)
	case collab.NotificationRequestRejected:
		Out.Printf("! your request was rejected: %s", notification.Message)
	}
}

func acknowledge(opts docopt.Opts) {
	session := newSession(opts)
	defer session.close()

	_, err := session.viewSync.Refresh(session.ctx)
	fatalIfErr(err)
	session.viewSync.AcknowledgeResponses()
	Out.Printf("Responses acknowledged.")
}

func requireAddressOpt(opts docopt.Opts, key string) collab.Address {
	addressStr, _ := opts.String(key)
	address, err := collab.ParseAddress(addressStr)
	if err != nil {
		Err.Fatalf("Invalid address %q (%s).", addressStr, err)
	}
	return address
}
