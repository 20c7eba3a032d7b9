// SPDX-License-Identifier: MPL-2.0

package container

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"lambdado-cli/internal/procrun"
)

const (
	// EngineTypeDocker identifies the docker CLI.
	EngineTypeDocker EngineType = "docker"

	// PortProtocolTCP is the TCP transport protocol for port mappings.
	PortProtocolTCP PortProtocol = "tcp"
	// PortProtocolUDP is the UDP transport protocol for port mappings.
	PortProtocolUDP PortProtocol = "udp"
)

var (
	// ErrInvalidPortMapping is the sentinel error wrapped by InvalidPortMappingError.
	ErrInvalidPortMapping = errors.New("invalid port mapping")

	// ErrInvalidBuildOptions is returned when BuildOptions lack required fields.
	ErrInvalidBuildOptions = errors.New("invalid build options")
)

type (
	// Engine is the registry client and image builder used by the pipeline.
	Engine interface {
		// Name returns the engine name (docker)
		Name() string
		// Available checks if the engine is available on the system
		Available(ctx context.Context) bool
		// Version returns the engine server version
		Version(ctx context.Context) (string, error)

		// Build builds an image from a Dockerfile, streaming progress
		Build(ctx context.Context, opts BuildOptions) error
		// Tag adds target as a name for the local image source
		Tag(ctx context.Context, source, target string) error
		// Login authenticates against a registry; the password goes to stdin only
		Login(ctx context.Context, opts LoginOptions) error
		// Push pushes ref and returns the captured transcript
		Push(ctx context.Context, ref string) (*procrun.Result, error)

		// Run starts a container from an image
		Run(ctx context.Context, opts RunOptions) error
		// Stop stops a running container by name
		Stop(ctx context.Context, name string) error
	}

	// EngineType identifies the container engine type.
	EngineType string

	// BuildOptions contains options for building an image.
	BuildOptions struct {
		// ContextDir is the build context directory
		ContextDir string
		// Dockerfile overrides the build file (relative paths resolve against ContextDir)
		Dockerfile string
		// Tag is the local image name
		Tag string
		// Platform pins the target platform, e.g. linux/amd64
		Platform string
		// BuildArgs are build-time variables
		BuildArgs map[string]string
		// NoCache disables the build cache
		NoCache bool
	}

	// LoginOptions contains registry credentials for Login.
	LoginOptions struct {
		Host     string
		Username string
		Password []byte
	}

	// RunOptions contains options for running a container locally.
	RunOptions struct {
		// Image is the image to run
		Image string
		// Name is the container name
		Name string
		// Ports are host-to-container port mappings
		Ports []PortMapping
		// Env contains environment variables
		Env map[string]string
		// Detach runs the container in the background
		Detach bool
		// Remove automatically removes the container after exit
		Remove bool
	}

	// PortProtocol represents a network transport protocol for port mappings.
	// The zero value ("") is valid and means "default to tcp".
	PortProtocol string

	// PortMapping represents a port mapping specification.
	PortMapping struct {
		HostPort      uint16
		ContainerPort uint16
		Protocol      PortProtocol
	}

	// InvalidPortMappingError is returned when a port mapping cannot be parsed.
	InvalidPortMappingError struct {
		Value  string
		Reason string
	}

	// ErrEngineNotAvailable is returned when a container engine is not available.
	ErrEngineNotAvailable struct {
		Engine string
		Reason string
	}
)

func (e *ErrEngineNotAvailable) Error() string {
	return fmt.Sprintf("container engine '%s' is not available: %s", e.Engine, e.Reason)
}

// Error implements the error interface.
func (e *InvalidPortMappingError) Error() string {
	return fmt.Sprintf("invalid port mapping %q: %s", e.Value, e.Reason)
}

// Unwrap returns ErrInvalidPortMapping for errors.Is() compatibility.
func (e *InvalidPortMappingError) Unwrap() error { return ErrInvalidPortMapping }

// Validate returns an error if the options cannot produce a build command.
func (o BuildOptions) Validate() error {
	if strings.TrimSpace(o.ContextDir) == "" {
		return fmt.Errorf("%w: context directory is required", ErrInvalidBuildOptions)
	}
	if strings.TrimSpace(o.Tag) == "" {
		return fmt.Errorf("%w: image name is required", ErrInvalidBuildOptions)
	}
	return nil
}

// String returns the port mapping in "host:container/protocol" format.
// Defaults to "tcp" when the protocol is empty.
func (p PortMapping) String() string {
	proto := p.Protocol
	if proto == "" {
		proto = PortProtocolTCP
	}
	return fmt.Sprintf("%d:%d/%s", p.HostPort, p.ContainerPort, proto)
}

// ParsePortMapping parses "host:container[/protocol]".
func ParsePortMapping(s string) (PortMapping, error) {
	var mapping PortMapping

	spec, proto, hasProto := strings.Cut(s, "/")
	if hasProto {
		switch PortProtocol(proto) {
		case PortProtocolTCP, PortProtocolUDP:
			mapping.Protocol = PortProtocol(proto)
		default:
			return mapping, &InvalidPortMappingError{Value: s, Reason: fmt.Sprintf("unknown protocol %q (valid: tcp, udp)", proto)}
		}
	}

	hostStr, containerStr, ok := strings.Cut(spec, ":")
	if !ok {
		return mapping, &InvalidPortMappingError{Value: s, Reason: "must contain ':' separator"}
	}

	hostPort, err := parsePort(hostStr)
	if err != nil {
		return mapping, &InvalidPortMappingError{Value: s, Reason: "host port: " + err.Error()}
	}
	containerPort, err := parsePort(containerStr)
	if err != nil {
		return mapping, &InvalidPortMappingError{Value: s, Reason: "container port: " + err.Error()}
	}

	mapping.HostPort = hostPort
	mapping.ContainerPort = containerPort
	return mapping, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, fmt.Errorf("%q is not a port number", s)
	}
	if n == 0 {
		return 0, errors.New("must be greater than zero")
	}
	return uint16(n), nil
}
