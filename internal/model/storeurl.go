package model

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/pkg/errors"
)

var ErrInvalidStoreURL = errors.New("invalid store URL")

var (
	localeSegmentRegex = regexp.MustCompile(`^[a-z]{2}-[a-z]{2}$`)
	steamAppIDRegex    = regexp.MustCompile(`^/app/(\d+)(?:/|$)`)
)

// countrySegmentLangs holds the storefronts that use a bare country segment,
// like nintendo.com/us/store/products/...
var countrySegmentLangs = map[string]string{
	"us": "en",
	"ca": "en",
}

func NintendoStoreURL(locale string, segment string) string {
	return fmt.Sprintf("https://www.nintendo.com/%s/store/products/%s/",
		strings.ToLower(locale), strings.Trim(segment, "/"))
}

func PlayStationStoreURL(locale string, segment string) string {
	return fmt.Sprintf("https://store.playstation.com/%s/%s",
		strings.ToLower(locale), strings.Trim(segment, "/"))
}

func SteamStoreURL(appID string, slug string) string {
	if slug == "" {
		return fmt.Sprintf("https://store.steampowered.com/app/%s/", appID)
	}
	return fmt.Sprintf("https://store.steampowered.com/app/%s/%s/", appID, strings.Trim(slug, "/"))
}

// StoreURLs builds the storefront URLs of every platform g has IGDB segments for.
func (g Game) StoreURLs(nintendoLocale string, playStationLocale string) map[Platform]string {
	urls := make(map[Platform]string)
	if g.NintendoSegment != "" {
		urls[PlatformNintendo] = NintendoStoreURL(nintendoLocale, g.NintendoSegment)
	}
	if g.PlayStationSegment != "" {
		urls[PlatformPlayStation] = PlayStationStoreURL(playStationLocale, g.PlayStationSegment)
	}
	if g.SteamAppID != "" {
		urls[PlatformPC] = SteamStoreURL(g.SteamAppID, g.SteamSlug)
	}
	return urls
}

// PlatformAndCleanURL detects the storefront of urlStr and strips its query and fragment.
func PlatformAndCleanURL(urlStr string) (Platform, string, error) {
	parsedURL, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", "", errors.Wrapf(ErrInvalidStoreURL, "%v", err)
	}
	cleanURL := "https://" + parsedURL.Host + parsedURL.Path
	switch strings.ToLower(parsedURL.Host) {
	case "www.nintendo.com", "nintendo.com":
		if !strings.Contains(parsedURL.Path, "/store/products/") {
			return "", "", errors.Wrapf(ErrInvalidStoreURL, "not a Nintendo product page: %s", cleanURL)
		}
		return PlatformNintendo, cleanURL, nil
	case "store.playstation.com":
		return PlatformPlayStation, cleanURL, nil
	case "store.steampowered.com":
		if _, err := SteamAppIDFromURL(cleanURL); err != nil {
			return "", "", err
		}
		return PlatformPC, cleanURL, nil
	}
	return "", "", errors.Wrapf(ErrInvalidStoreURL, "unsupported site: %s", cleanURL)
}

// LocaleFromURL returns the country and language of a "/en-ca/..." or "/us/..."
// style path.
func LocaleFromURL(urlStr string) (country string, lang string, ok bool) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", "", false
	}
	first, _, _ := strings.Cut(strings.TrimPrefix(parsedURL.Path, "/"), "/")
	first = strings.ToLower(first)
	if lang, ok = countrySegmentLangs[first]; ok {
		return strings.ToUpper(first), lang, true
	}
	if !localeSegmentRegex.MatchString(first) {
		return "", "", false
	}
	lang, country, _ = strings.Cut(first, "-")
	return strings.ToUpper(country), lang, true
}

func SteamAppIDFromURL(urlStr string) (string, error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", errors.Wrapf(ErrInvalidStoreURL, "%v", err)
	}
	m := steamAppIDRegex.FindStringSubmatch(parsedURL.Path)
	if m == nil {
		return "", errors.Wrapf(ErrInvalidStoreURL, "no Steam app ID in URL: %s", urlStr)
	}
	return m[1], nil
}
