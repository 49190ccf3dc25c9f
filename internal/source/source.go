package source

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/nao1215/ripnft/internal/model"
)

// IPFSScheme is the content-addressed storage prefix recognised in stubs.
const IPFSScheme = "ipfs://"

// DefaultGateway is the public IPFS gateway host.
const DefaultGateway = "ipfs.io"

// ErrIndexNotInURL is returned by InferStub when the sample URL does not end
// with the item index.
var ErrIndexNotInURL = errors.New("index not found at end of url")

// options holds generator settings.
type options struct {
	gateway string
	http    bool
	suffix  string
}

// Option configures URL generation.
type Option func(*options)

// WithGateway sets the gateway host used for ipfs:// stubs.
func WithGateway(host string) Option {
	return func(o *options) {
		if host != "" {
			o.gateway = host
		}
	}
}

// WithHTTP makes the gateway URL use plain http instead of https.
func WithHTTP(plain bool) Option {
	return func(o *options) {
		o.http = plain
	}
}

// WithSuffix appends suffix (e.g. ".json") after each index.
func WithSuffix(suffix string) Option {
	return func(o *options) {
		o.suffix = suffix
	}
}

func newOptions(opts []Option) options {
	o := options{gateway: DefaultGateway}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// RewriteGateway rewrites an ipfs:// reference to a gateway URL.
// Any other string is returned unchanged.
func RewriteGateway(ref string, opts ...Option) string {
	o := newOptions(opts)
	return o.rewrite(ref)
}

func (o options) rewrite(ref string) string {
	if !strings.HasPrefix(ref, IPFSScheme) {
		return ref
	}
	scheme := "https"
	if o.http {
		scheme = "http"
	}
	return fmt.Sprintf("%s://%s/ipfs/%s", scheme, o.gateway, strings.TrimPrefix(ref, IPFSScheme))
}

// GenerateURLs produces one task per index, in the order given.
//
// Example: stub "ipfs://CID/", gateway "ipfs.io", index 3, suffix ".json"
// gives "https://ipfs.io/ipfs/CID/3.json".
func GenerateURLs(stub string, indices []int, opts ...Option) []model.FetchTask {
	o := newOptions(opts)
	base := o.rewrite(stub)

	tasks := make([]model.FetchTask, 0, len(indices))
	for _, i := range indices {
		tasks = append(tasks, model.FetchTask{
			Index: i,
			URL:   base + strconv.Itoa(i) + o.suffix,
		})
	}
	return tasks
}

// Range returns the indices [start, start+count).
func Range(start, count int) []int {
	if count <= 0 {
		return []int{}
	}
	out := make([]int, count)
	for i := range out {
		out[i] = start + i
	}
	return out
}

// InferStub splits a sample item URL into its stub and suffix, given the
// index the URL belongs to. "ipfs://CID/12.json" with index 12 yields
// stub "ipfs://CID/" and suffix ".json".
func InferStub(sampleURL string, index int) (stub, suffix string, err error) {
	slash := strings.LastIndex(sampleURL, "/")
	if slash < 0 {
		return "", "", fmt.Errorf("%w: %s", ErrIndexNotInURL, sampleURL)
	}
	head, last := sampleURL[:slash+1], sampleURL[slash+1:]

	id := strconv.Itoa(index)
	if !strings.HasPrefix(last, id) {
		return "", "", fmt.Errorf("%w: %s (index %d)", ErrIndexNotInURL, sampleURL, index)
	}
	rest := last[len(id):]
	// "120.json" must not match index 12.
	if rest != "" && rest[0] >= '0' && rest[0] <= '9' {
		return "", "", fmt.Errorf("%w: %s (index %d)", ErrIndexNotInURL, sampleURL, index)
	}
	return head, rest, nil
}
