// Package usecase implements the assistant: the request flow from raw input through the
// router and the supervisor, plus the built-in commands answered locally.
package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	assistantDomain "github.com/allisson/capvault/internal/assistant/domain"
	capabilityDomain "github.com/allisson/capvault/internal/capability/domain"
	cryptoDomain "github.com/allisson/capvault/internal/crypto/domain"
	orchestratorDomain "github.com/allisson/capvault/internal/orchestrator/domain"
	orchestratorUsecase "github.com/allisson/capvault/internal/orchestrator/usecase"
	routerDomain "github.com/allisson/capvault/internal/router/domain"
	routerUsecase "github.com/allisson/capvault/internal/router/usecase"
	vaultDomain "github.com/allisson/capvault/internal/vault/domain"
)

// KeyStatus reports the key manager state.
type KeyStatus interface {
	State() vaultDomain.KeyState
	KeyPair(ctx context.Context) (*cryptoDomain.KeyPair, error)
}

// CredentialCatalog lists stored credentials without decrypting them.
type CredentialCatalog interface {
	List(ctx context.Context) ([]vaultDomain.CredentialInfo, error)
	NeedsReentry() []string
	LiveSessions() int
}

// CapabilitySource exposes the active capability set.
type CapabilitySource interface {
	Snapshot() *capabilityDomain.Set
}

// Assistant answers user input.
type Assistant interface {
	// Handle routes input and returns the reply. Built-in commands are answered locally;
	// unknown commands return the help listing and never reach the supervisor. Every
	// other error is returned as is, for Explain to render.
	Handle(ctx context.Context, conv *assistantDomain.Conversation, input string) (*assistantDomain.Reply, error)

	// Status summarizes the vault, stored credentials and the registry.
	Status(ctx context.Context) (*assistantDomain.Status, error)
}

type assistant struct {
	router            routerUsecase.Router
	supervisor        orchestratorUsecase.Supervisor
	keys              KeyStatus
	credentials       CredentialCatalog
	capabilities      CapabilitySource
	defaultCapability string
	logger            *slog.Logger
}

// NewAssistant creates an Assistant.
func NewAssistant(
	router routerUsecase.Router,
	supervisor orchestratorUsecase.Supervisor,
	keys KeyStatus,
	credentials CredentialCatalog,
	capabilities CapabilitySource,
	defaultCapability string,
	logger *slog.Logger,
) Assistant {
	return &assistant{
		router:            router,
		supervisor:        supervisor,
		keys:              keys,
		credentials:       credentials,
		capabilities:      capabilities,
		defaultCapability: defaultCapability,
		logger:            logger,
	}
}

func (a *assistant) Handle(
	ctx context.Context,
	conv *assistantDomain.Conversation,
	input string,
) (*assistantDomain.Reply, error) {
	session := conv.Session()
	decision := a.router.Classify(input)

	if decision.IsCommand() && routerDomain.IsBuiltin(decision.Name) {
		return a.builtin(ctx, conv, decision)
	}
	if !decision.IsCommand() && decision.Text == "" {
		return a.reply(conv, assistantDomain.ReplyBuiltin, "Type a message, or /help for the list of commands."), nil
	}

	descriptor, err := a.router.Resolve(ctx, decision, session)
	if err != nil {
		var unknown *routerDomain.UnknownCommandError
		if errors.As(err, &unknown) {
			a.logger.Debug("unknown command", slog.String("command", unknown.Command))
			text := assistantDomain.Explain(err) + "\n\n" + a.router.Help()
			return a.reply(conv, assistantDomain.ReplyHelp, text), nil
		}
		return nil, err
	}

	result, err := a.supervisor.Dispatch(ctx, descriptor, a.payload(decision, session))
	if err != nil {
		return nil, err
	}

	reply := a.reply(conv, assistantDomain.ReplyCapability, result.Text)
	reply.Capability = result.Capability
	reply.Attempts = result.Attempts
	return reply, nil
}

func (a *assistant) payload(decision routerDomain.Decision, session routerDomain.Session) orchestratorDomain.Payload {
	payload := orchestratorDomain.Payload{
		Message: decision.Payload(),
		Context: map[string]string{"research": fmt.Sprint(session.Research)},
	}
	if decision.IsCommand() {
		payload.Args = decision.Args
		payload.Context["command"] = decision.Name
	}
	return payload
}

func (a *assistant) builtin(
	ctx context.Context,
	conv *assistantDomain.Conversation,
	decision routerDomain.Decision,
) (*assistantDomain.Reply, error) {
	switch decision.Name {
	case routerDomain.BuiltinHelp:
		return a.reply(conv, assistantDomain.ReplyHelp, a.router.Help()), nil

	case routerDomain.BuiltinStatus:
		status, err := a.Status(ctx)
		if err != nil {
			return nil, err
		}
		return a.reply(conv, assistantDomain.ReplyBuiltin, status.Render()), nil

	case routerDomain.BuiltinHealth:
		report, err := a.supervisor.Health(ctx)
		if err != nil {
			return nil, err
		}
		return a.reply(conv, assistantDomain.ReplyBuiltin, assistantDomain.RenderHealth(report)), nil

	default: // research
		switch strings.ToLower(strings.TrimSpace(decision.Args)) {
		case "on":
			conv.SetResearch(true)
			return a.reply(conv, assistantDomain.ReplyBuiltin, "Research mode on."), nil
		case "off":
			conv.SetResearch(false)
			return a.reply(conv, assistantDomain.ReplyBuiltin, "Research mode off."), nil
		case "":
			state := "off"
			if conv.Session().Research {
				state = "on"
			}
			return a.reply(conv, assistantDomain.ReplyBuiltin, "Research mode is "+state+"."), nil
		default:
			return a.reply(conv, assistantDomain.ReplyBuiltin, "Usage: /research on|off"), nil
		}
	}
}

func (a *assistant) reply(conv *assistantDomain.Conversation, kind assistantDomain.ReplyKind, text string) *assistantDomain.Reply {
	return &assistantDomain.Reply{Kind: kind, Text: text, Research: conv.Session().Research}
}

func (a *assistant) Status(ctx context.Context) (*assistantDomain.Status, error) {
	status := &assistantDomain.Status{
		KeyState:     a.keys.State().String(),
		LiveSessions: a.credentials.LiveSessions(),
	}

	keyPair, err := a.keys.KeyPair(ctx)
	switch {
	case err == nil:
		status.Initialized = true
		status.KeyID = keyPair.KeyID
	case errors.Is(err, vaultDomain.ErrKeyMissing):
	default:
		return nil, err
	}

	if status.Initialized {
		credentials, err := a.credentials.List(ctx)
		if err != nil {
			return nil, err
		}
		status.Credentials = credentials
	}
	// List flags unreadable records, so read the flags after it.
	status.NeedsReentry = a.credentials.NeedsReentry()
	if status.Credentials == nil {
		status.Credentials = []vaultDomain.CredentialInfo{}
	}
	if status.NeedsReentry == nil {
		status.NeedsReentry = []string{}
	}

	set := a.capabilities.Snapshot()
	status.Capabilities = set.Len()
	status.RegistryVersion = set.Version()
	status.RegistryLoaded = set.LoadedAt()

	table := a.router.Table()
	status.RoutingVersion = table.Version()
	status.DefaultTarget = table.DefaultTarget(a.defaultCapability)
	return status, nil
}
