package browser

import (
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// applyRequestBlocking intercepts requests and drops known tracking hosts
// and non-essential resource types before they hit the network.
func applyRequestBlocking(page *rod.Page, p *Profile) error {
	blockTypes := make(map[string]bool, len(p.BlockedResourceTypes))
	for _, t := range p.BlockedResourceTypes {
		blockTypes[strings.ToLower(t)] = true
	}

	router := page.HijackRequests()

	router.MustAdd("*", func(h *rod.Hijack) {
		if blockedHost(p.BlockedHosts, h.Request.URL().Hostname()) ||
			blockedType(blockTypes, string(h.Request.Type())) {
			h.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		h.ContinueRequest(&proto.FetchContinueRequest{})
	})

	go router.Run()

	return nil
}

func blockedHost(hosts []string, hostname string) bool {
	hostname = strings.ToLower(hostname)
	for _, h := range hosts {
		if hostname == h || strings.HasSuffix(hostname, "."+h) {
			return true
		}
	}
	return false
}

func blockedType(blockSet map[string]bool, resType string) bool {
	switch strings.ToLower(resType) {
	case "font":
		return blockSet["fonts"]
	case "media":
		return blockSet["media"]
	case "image":
		return blockSet["images"]
	case "stylesheet":
		return blockSet["stylesheets"]
	}
	return blockSet[strings.ToLower(resType)]
}
