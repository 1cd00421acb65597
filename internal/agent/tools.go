package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/Idan-Levin/slack-shopping-agent/internal/domain"
	"github.com/Idan-Levin/slack-shopping-agent/internal/resolver"
)

// ProductResolver is the resolution pipeline surface the tools need.
type ProductResolver interface {
	ResolveFromURL(ctx context.Context, url string) (*domain.ProductCandidate, error)
	ResolveFromQuery(ctx context.Context, query string, maxResults int) []domain.ProductCandidate
}

const searchToolResults = 3

// itemIDPattern recognizes "id 5" / "item 12" style references in free-text
// item descriptions.
var itemIDPattern = regexp.MustCompile(`(?i)\b(?:id|item)\s*#?(\d+)\b`)

// Toolbox executes the agent's tools. Caller identity comes from the Slack
// event, never from model output, so the model cannot act on another user's
// behalf.
type Toolbox struct {
	resolver ProductResolver
	store    domain.ItemStore
	logger   *zap.Logger
}

// NewToolbox wires the tool implementations.
func NewToolbox(res ProductResolver, store domain.ItemStore, logger *zap.Logger) *Toolbox {
	return &Toolbox{resolver: res, store: store, logger: logger}
}

// Defs returns the tool declarations sent to the model.
func (t *Toolbox) Defs() []ToolDef {
	return []ToolDef{
		{
			Name:        "get_product_details_from_url",
			Description: "Use this tool ONLY when you are given a specific target.com product URL. It extracts the product's title, price, and image URL from the webpage.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"url": map[string]any{
						"type":        "string",
						"description": "The valid https URL for a product page on target.com",
					},
				},
				"required": []string{"url"},
			},
		},
		{
			Name:        "search_products",
			Description: "Use this tool to find products available at Target based on a user's search query (e.g., 'cheap detergent', 'milk', 'birthday card'). Returns a list of products found.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"query": map[string]any{
						"type":        "string",
						"description": "The natural language search query for the product",
					},
				},
				"required": []string{"query"},
			},
		},
		{
			Name:        "add_item",
			Description: "Use this tool to add a specific product with its quantity to the shopping list. Only use AFTER confirming the product details AND quantity with the user.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"product_title": map[string]any{"type": "string", "description": "The name/title of the product"},
					"quantity":      map[string]any{"type": "integer", "description": "The number of units to add"},
					"price":         map[string]any{"type": "number", "description": "The price per unit, if known. A number, not a string."},
					"url":           map[string]any{"type": "string", "description": "The URL of the product page, if known"},
					"image_url":     map[string]any{"type": "string", "description": "The URL of the product image, if known"},
					"final_url":     map[string]any{"type": "string", "description": "The final URL after redirects, if different from the original"},
				},
				"required": []string{"product_title", "quantity"},
			},
		},
		{
			Name:        "view_list",
			Description: "Use this tool to view all items currently on the active shopping list.",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			},
		},
		{
			Name:        "delete_item",
			Description: "Use this tool to delete an item from the shopping list based on a description or item ID. Users can only delete items they added themselves.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_description": map[string]any{
						"type":        "string",
						"description": "A description sufficient to identify the item (e.g., 'the oreo cookies', 'item id 5'). Be specific if multiple similar items exist.",
					},
				},
				"required": []string{"item_description"},
			},
		},
		{
			Name:        "update_quantity",
			Description: "Use this tool to change the quantity of an item already on the list. A quantity of zero removes the item. Users can only change items they added themselves.",
			Parameters: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"item_description": map[string]any{
						"type":        "string",
						"description": "A description or item ID identifying the item to change",
					},
					"quantity": map[string]any{"type": "integer", "description": "The new quantity"},
				},
				"required": []string{"item_description", "quantity"},
			},
		},
	}
}

// Dispatch runs the named tool and returns its result as text for the model.
// Failures come back as "Error: ..." strings rather than Go errors; the model
// relays them conversationally.
func (t *Toolbox) Dispatch(ctx context.Context, call ToolCall, userID, userName string) string {
	t.logger.Info("tool call",
		zap.String("tool", call.Name),
		zap.String("user_id", userID))

	switch call.Name {
	case "get_product_details_from_url":
		return t.getProductDetails(ctx, call.Args)
	case "search_products":
		return t.searchProducts(ctx, call.Args)
	case "add_item":
		return t.addItem(ctx, call.Args, userID, userName)
	case "view_list":
		return t.viewList(ctx)
	case "delete_item":
		return t.deleteItem(ctx, call.Args, userID)
	case "update_quantity":
		return t.updateQuantity(ctx, call.Args, userID)
	default:
		return fmt.Sprintf("Error: Unknown tool '%s'.", call.Name)
	}
}

func (t *Toolbox) getProductDetails(ctx context.Context, args string) string {
	var in struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil || in.URL == "" {
		return "Error: The tool needs a 'url' argument with a target.com product URL."
	}

	cand, err := t.resolver.ResolveFromURL(ctx, in.URL)
	if err != nil {
		return "Error: Could not extract valid product details from the URL. It might be invalid, out of stock, or the page structure changed."
	}

	out := map[string]any{
		"title":        cand.Title,
		"price":        cand.Price,
		"image_url":    cand.ImageURL,
		"original_url": in.URL,
		"final_url":    cand.URL,
	}
	if cand.Note != "" {
		out["note"] = cand.Note
	}
	data, err := json.Marshal(out)
	if err != nil {
		return "Error: Could not encode the product details."
	}
	return string(data)
}

func (t *Toolbox) searchProducts(ctx context.Context, args string) string {
	var in struct {
		Query string `json:"query"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil || in.Query == "" {
		return "Error: The tool needs a 'query' argument describing the product to find."
	}

	results := t.resolver.ResolveFromQuery(ctx, in.Query, searchToolResults)
	if len(results) == 0 {
		return fmt.Sprintf("Sorry, I couldn't find any products matching '%s' at Target right now.", in.Query)
	}
	data, err := json.Marshal(results)
	if err != nil {
		return "Error: Could not encode the search results."
	}
	return string(data)
}

func (t *Toolbox) addItem(ctx context.Context, args, userID, userName string) string {
	var in struct {
		ProductTitle string          `json:"product_title"`
		Quantity     int             `json:"quantity"`
		Price        json.RawMessage `json:"price"`
		URL          string          `json:"url"`
		ImageURL     string          `json:"image_url"`
		FinalURL     string          `json:"final_url"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil {
		return "Error: Could not read the add_item arguments."
	}
	if in.Quantity <= 0 {
		return fmt.Sprintf("Error: Invalid quantity '%d'. Quantity must be a positive whole number.", in.Quantity)
	}

	// Models sometimes send the price as a formatted string.
	var price *float64
	if len(in.Price) > 0 && string(in.Price) != "null" {
		var num float64
		if err := json.Unmarshal(in.Price, &num); err == nil {
			price = &num
		} else {
			var str string
			if err := json.Unmarshal(in.Price, &str); err == nil {
				price = resolver.ParsePrice(str)
			}
		}
	}

	url := in.URL
	if in.FinalURL != "" {
		url = in.FinalURL
	}

	id, err := t.store.AddItem(ctx, userID, userName, in.ProductTitle, in.Quantity, price, url, in.ImageURL)
	if err != nil {
		t.logger.Error("add_item tool failed", zap.String("title", in.ProductTitle), zap.Error(err))
		return fmt.Sprintf("Error: Could not add '%s' to the list due to an internal error.", in.ProductTitle)
	}
	return fmt.Sprintf("Success! Added %d x '%s' to the shopping list for %s (Item ID: %d).", in.Quantity, in.ProductTitle, userName, id)
}

func (t *Toolbox) viewList(ctx context.Context) string {
	items, err := t.store.GetActiveItems(ctx)
	if err != nil {
		t.logger.Error("view_list tool failed", zap.Error(err))
		return "Error: Could not retrieve the shopping list."
	}
	if len(items) == 0 {
		return "The shopping list is currently empty."
	}

	lines := []string{"*🛒 Current Shopping List:*"}
	for i, item := range items {
		line := fmt.Sprintf("%d. *%s* (ID: %d)\n   Qty: %d | Price: %s | Added by: %s",
			i+1, item.ProductTitle, item.ID, item.Quantity, resolver.FormatPrice(item.Price), item.UserName)
		if item.ProductURL != "" {
			line += fmt.Sprintf(" | <%s|Link>", item.ProductURL)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n---\n")
}

func (t *Toolbox) deleteItem(ctx context.Context, args, userID string) string {
	var in struct {
		ItemDescription string `json:"item_description"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil || in.ItemDescription == "" {
		return "Error: The tool needs an 'item_description' argument."
	}

	id, title, errMsg := t.findTarget(ctx, userID, in.ItemDescription)
	if errMsg != "" {
		return errMsg
	}

	switch err := t.store.DeleteItem(ctx, id, userID); {
	case errors.Is(err, domain.ErrPermissionDenied):
		return fmt.Sprintf("Error: You do not have permission to delete Item ID %d because you did not add it.", id)
	case errors.Is(err, domain.ErrItemNotFound):
		return fmt.Sprintf("Error: Could not delete '%s' (ID: %d). It might have already been removed.", title, id)
	case err != nil:
		t.logger.Error("delete_item tool failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Sprintf("Error: An internal error occurred while trying to delete item ID %d.", id)
	}
	return fmt.Sprintf("Success! Deleted '%s' (ID: %d) from the shopping list.", title, id)
}

func (t *Toolbox) updateQuantity(ctx context.Context, args, userID string) string {
	var in struct {
		ItemDescription string `json:"item_description"`
		Quantity        int    `json:"quantity"`
	}
	if err := json.Unmarshal([]byte(args), &in); err != nil || in.ItemDescription == "" {
		return "Error: The tool needs 'item_description' and 'quantity' arguments."
	}

	id, title, errMsg := t.findTarget(ctx, userID, in.ItemDescription)
	if errMsg != "" {
		return errMsg
	}

	switch err := t.store.UpdateItemQuantity(ctx, id, in.Quantity, userID); {
	case errors.Is(err, domain.ErrPermissionDenied):
		return fmt.Sprintf("Error: You do not have permission to change Item ID %d because you did not add it.", id)
	case errors.Is(err, domain.ErrItemNotFound):
		return fmt.Sprintf("Error: Item ID %d was not found. It might have already been removed.", id)
	case err != nil:
		t.logger.Error("update_quantity tool failed", zap.Int64("id", id), zap.Error(err))
		return fmt.Sprintf("Error: An internal error occurred while updating item ID %d.", id)
	}

	if in.Quantity <= 0 {
		return fmt.Sprintf("Success! Removed '%s' (ID: %d) from the shopping list.", title, id)
	}
	return fmt.Sprintf("Success! Updated '%s' (ID: %d) to quantity %d.", title, id, in.Quantity)
}

// findTarget resolves a free-text item reference to a single item ID owned by
// the user. The non-empty third return is a model-facing message explaining
// why resolution failed.
func (t *Toolbox) findTarget(ctx context.Context, userID, description string) (int64, string, string) {
	if m := itemIDPattern.FindStringSubmatch(description); m != nil {
		id, err := strconv.ParseInt(m[1], 10, 64)
		if err == nil {
			item, err := t.store.GetItem(ctx, id)
			if errors.Is(err, domain.ErrItemNotFound) {
				return 0, "", fmt.Sprintf("Error: Item with ID %d not found.", id)
			}
			if err != nil {
				return 0, "", fmt.Sprintf("Error: Could not look up item ID %d.", id)
			}
			if item.UserID != userID {
				return 0, "", fmt.Sprintf("Error: You cannot change Item ID %d because you did not add it (added by %s).", id, item.UserName)
			}
			return id, item.ProductTitle, ""
		}
	}

	matches, err := t.store.FindItemsByDescription(ctx, userID, description)
	if err != nil {
		t.logger.Error("item search failed", zap.String("description", description), zap.Error(err))
		return 0, "", "Error: An internal error occurred while searching for the item."
	}
	switch len(matches) {
	case 0:
		return 0, "", fmt.Sprintf("Sorry, I couldn't find any active items added by you that match '%s'. Use the 'view_list' tool to see your items and their IDs.", description)
	case 1:
		return matches[0].ID, matches[0].ProductTitle, ""
	default:
		lines := make([]string, 0, len(matches))
		for _, item := range matches {
			lines = append(lines, fmt.Sprintf("- '%s' (ID: %d)", item.ProductTitle, item.ID))
		}
		return 0, "", fmt.Sprintf("Found multiple items matching '%s' added by you:\n%s\nPlease try again using the specific Item ID.", description, strings.Join(lines, "\n"))
	}
}
