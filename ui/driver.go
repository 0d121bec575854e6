package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/kbenzarti/botbench/logger"
	"github.com/kbenzarti/botbench/model"
)

// Telegram Web markup is not stable across releases, so every interaction
// tries a list of selectors in order and uses the first that resolves.
var (
	searchSelectors = []string{
		"input[placeholder*='Search']",
		".search-input input",
		"#telegram-search-input",
	}
	messageInputSelectors = []string{
		"div[contenteditable='true']",
		".input-message-input",
		"#editable-message-text",
	}
	sendButtonSelectors = []string{
		"button[aria-label*='Send']",
		".btn-send",
		"button.send",
	}
	messageSelectors = []string{
		".message .text-content",
		".message-content .text",
		".im_message_text",
	}
)

// Driver automates the Telegram Web client through a headless browser.
type Driver struct {
	cfg     model.Config
	pw      *playwright.Playwright
	browser playwright.Browser
	page    playwright.Page
}

// NewDriver launches a browser and opens the Telegram Web client.
func NewDriver(cfg model.Config) (*Driver, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("could not start playwright: %w", err)
	}

	browser, err := pw.Chromium.Launch(playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(cfg.Headless),
	})
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("could not launch browser: %w", err)
	}

	page, err := browser.NewPage()
	if err != nil {
		browser.Close()
		pw.Stop()
		return nil, fmt.Errorf("could not create page: %w", err)
	}

	d := &Driver{cfg: cfg, pw: pw, browser: browser, page: page}
	if err := d.navigate(); err != nil {
		d.Close()
		return nil, err
	}

	return d, nil
}

func (d *Driver) navigate() error {
	if _, err := d.page.Goto(d.cfg.WebURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateNetworkidle,
	}); err != nil {
		return fmt.Errorf("could not navigate to %s: %w", d.cfg.WebURL, err)
	}

	d.page.WaitForTimeout(2000)
	return nil
}

// firstVisible returns the first locator among the candidates that currently
// resolves to a visible element.
func (d *Driver) firstVisible(selectors []string) (playwright.Locator, error) {
	for _, selector := range selectors {
		loc := d.page.Locator(selector).First()
		visible, err := loc.IsVisible()
		if err == nil && visible {
			return loc, nil
		}
	}
	return nil, fmt.Errorf("no visible element among selectors %v", selectors)
}

// OpenChat searches for the bot by username and opens its conversation.
func (d *Driver) OpenChat() error {
	search, err := d.firstVisible(searchSelectors)
	if err != nil {
		return fmt.Errorf("search box not found: %w", err)
	}

	username := d.cfg.BotUsername
	if !strings.HasPrefix(username, "@") {
		username = "@" + username
	}

	if err := search.Fill(username); err != nil {
		return fmt.Errorf("could not type into search: %w", err)
	}
	d.page.WaitForTimeout(1500)

	result := d.page.Locator(fmt.Sprintf("text=%s", username)).First()
	if err := result.Click(playwright.LocatorClickOptions{Timeout: playwright.Float(5000)}); err != nil {
		return fmt.Errorf("could not open chat for %s: %w", username, err)
	}
	d.page.WaitForTimeout(1000)

	logger.Logger.Debug("Chat opened", "bot", username)
	return nil
}

// SendText types a message into the chat input and sends it. Sending falls
// back to pressing Enter when no send button is visible.
func (d *Driver) SendText(text string) error {
	input, err := d.firstVisible(messageInputSelectors)
	if err != nil {
		return fmt.Errorf("message input not found: %w", err)
	}

	if err := input.Fill(text); err != nil {
		return fmt.Errorf("could not type message: %w", err)
	}

	if btn, err := d.firstVisible(sendButtonSelectors); err == nil {
		if err := btn.Click(); err != nil {
			return fmt.Errorf("could not click send: %w", err)
		}
	} else {
		if err := input.Press("Enter"); err != nil {
			return fmt.Errorf("could not press enter: %w", err)
		}
	}

	logger.Logger.Debug("Message sent via UI", "text", text)
	return nil
}

// LastMessage returns the text of the newest visible message in the chat.
func (d *Driver) LastMessage() (string, error) {
	for _, selector := range messageSelectors {
		msgs, err := d.page.Locator(selector).All()
		if err != nil || len(msgs) == 0 {
			continue
		}
		text, err := msgs[len(msgs)-1].InnerText()
		if err != nil {
			continue
		}
		return strings.TrimSpace(text), nil
	}
	return "", fmt.Errorf("no messages visible")
}

// WaitForResponse polls the chat until a message different from the sent
// text appears or the timeout passes.
func (d *Driver) WaitForResponse(sent string, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for time.Now().Before(deadline) {
		text, err := d.LastMessage()
		if err == nil && text != "" && text != strings.TrimSpace(sent) {
			return text, nil
		}
		d.page.WaitForTimeout(500)
	}

	return "", fmt.Errorf("no response within %s", timeout)
}

// CaptureScreenshot writes a full-page screenshot to the given path.
func (d *Driver) CaptureScreenshot(path string) error {
	if _, err := d.page.Screenshot(playwright.PageScreenshotOptions{
		Path:     playwright.String(path),
		FullPage: playwright.Bool(true),
	}); err != nil {
		return fmt.Errorf("could not capture screenshot: %w", err)
	}
	return nil
}

// Close shuts the page, browser and playwright driver down. Safe to call
// more than once.
func (d *Driver) Close() {
	if d.browser != nil {
		d.browser.Close()
		d.browser = nil
	}
	if d.pw != nil {
		d.pw.Stop()
		d.pw = nil
	}
}

// Install downloads the browsers playwright needs.
func Install() error {
	return playwright.Install()
}

// IsAvailable checks if playwright browsers are installed
func IsAvailable() bool {
	pw, err := playwright.Run()
	if err != nil {
		return false
	}
	pw.Stop()
	return true
}
