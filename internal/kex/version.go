package kex

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ClientVersionString is this implementation's SSH identification string,
// sent without the trailing CRLF (the caller appends it).
const ClientVersionString = "SSH-2.0-gossh_1.0"

// maxBannerLineLength and maxBannerTotalBytes bound banner-phase reads
// against a server that never sends a valid SSH-2.0 line (SPEC_FULL.md
// Section 4.E, step 1).
const (
	maxBannerLineLength = 255
	maxBannerTotalBytes = 64 * 1024
)

// ErrProtocol indicates a malformed or missing version banner.
var ErrProtocol = errors.New("ssh: protocol error")

// ExchangeVersions writes the client's identification string to w and reads
// the server's, tolerating any number of non-SSH preamble lines the server
// sends first (RFC 4253 Section 4.2). Returns the server's full
// identification line without the trailing CRLF.
func ExchangeVersions(r *bufio.Reader, w io.Writer) (serverVersion []byte, err error) {
	if _, err := w.Write([]byte(ClientVersionString + "\r\n")); err != nil {
		return nil, fmt.Errorf("ssh: write version banner: %w", err)
	}

	var total int
	for {
		line, err := readBannerLine(r)
		if err != nil {
			return nil, err
		}
		total += len(line)
		if total > maxBannerTotalBytes {
			return nil, fmt.Errorf("ssh: banner exceeded %d bytes: %w", maxBannerTotalBytes, ErrProtocol)
		}
		if strings.HasPrefix(line, "SSH-2.0-") {
			return []byte(line), nil
		}
		// Non-SSH preamble line (RFC 4253 Section 4.2): discard and keep
		// reading, up to the total byte budget above.
	}
}

func readBannerLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("ssh: read version banner: %w", err)
	}
	if len(line) > maxBannerLineLength {
		return "", fmt.Errorf("ssh: banner line exceeded %d bytes: %w", maxBannerLineLength, ErrProtocol)
	}
	line = strings.TrimRight(line, "\r\n")
	return line, nil
}
