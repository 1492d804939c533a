package mcp

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"rpg-narrative-api/internal/application/campaign"
	"rpg-narrative-api/internal/application/turn"
	"rpg-narrative-api/internal/domain/combat"
	"rpg-narrative-api/internal/domain/repository"
)

type createCampaignTool struct {
	campaigns Campaigns
}

func (t *createCampaignTool) Definition() mcp.Tool {
	return mcp.NewTool("campaign_create",
		mcp.WithDescription("Create a campaign with a single player character. Returns the campaign id."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Campaign name")),
		mcp.WithString("setting", mcp.Description("World and premise, used in every narration prompt")),
		mcp.WithString("character_name", mcp.Required(), mcp.Description("Player character name")),
		mcp.WithString("character_class", mcp.Description("Class, e.g. ranger")),
		mcp.WithNumber("max_hp", mcp.Required(), mcp.Description("Maximum health, positive")),
		mcp.WithNumber("defense", mcp.Description("Defense target for enemy attacks (default 10)")),
		mcp.WithNumber("attack_bonus", mcp.Description("Added to attack rolls")),
	)
}

func (t *createCampaignTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	in := campaign.CreateInput{
		Name:    req.GetString("name", ""),
		Setting: req.GetString("setting", ""),
		Character: campaign.CharacterInput{
			Name:        req.GetString("character_name", ""),
			Class:       req.GetString("character_class", ""),
			MaxHP:       intArg(req, "max_hp", 0),
			Defense:     intArg(req, "defense", 10),
			AttackBonus: intArg(req, "attack_bonus", 0),
		},
	}
	view, err := t.campaigns.Create(ctx, in)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(view)
}

type takeActionTool struct {
	turns Turns
}

func (t *takeActionTool) Definition() mcp.Tool {
	return mcp.NewTool("campaign_action",
		mcp.WithDescription("Submit a player action. Resolves combat mechanics, retrieves relevant past turns "+
			"and returns the narrator's response together with the updated combat state."),
		mcp.WithString("campaign_id", mcp.Required(), mcp.Description("Campaign id")),
		mcp.WithString("text", mcp.Required(), mcp.Description("What the player does, in free text")),
		mcp.WithNumber("seed", mcp.Description("Optional dice seed for reproducible resolution")),
	)
}

func (t *takeActionTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	r := turn.Request{
		CampaignID: req.GetString("campaign_id", ""),
		Text:       req.GetString("text", ""),
	}
	if v, ok := req.GetArguments()["seed"].(float64); ok {
		seed := int64(v)
		r.Seed = &seed
	}

	res, err := t.turns.Process(ctx, r)
	if err != nil {
		return errorResult(err)
	}

	var b strings.Builder
	b.WriteString(res.Turn.NarrativeResponse)
	b.WriteString("\n\n")
	fmt.Fprintf(&b, "[turn %d] %s", res.Turn.SequenceIndex, res.Outcome.NarrativeHint)
	if res.Outcome.IsCombatEnding {
		fmt.Fprintf(&b, " (combat over: %s)", res.Outcome.EndReason)
	}
	if res.CombatState.Active {
		b.WriteString("\n")
		b.WriteString(healthLine(res.CombatState))
	}
	return mcp.NewToolResultText(b.String()), nil
}

func healthLine(s combat.State) string {
	parts := make([]string, 0, len(s.Participants))
	for _, p := range s.Participants {
		parts = append(parts, fmt.Sprintf("%s %d/%d", p.Name, p.CurrentHP, p.MaxHP))
	}
	return fmt.Sprintf("round %d: %s", s.RoundIndex, strings.Join(parts, ", "))
}

type campaignStatusTool struct {
	campaigns Campaigns
}

func (t *campaignStatusTool) Definition() mcp.Tool {
	return mcp.NewTool("campaign_status",
		mcp.WithDescription("Show a campaign, its characters and the current combat state."),
		mcp.WithString("campaign_id", mcp.Required(), mcp.Description("Campaign id")),
	)
}

func (t *campaignStatusTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	view, err := t.campaigns.Get(ctx, req.GetString("campaign_id", ""))
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(view)
}

type turnHistoryTool struct {
	campaigns Campaigns
}

func (t *turnHistoryTool) Definition() mcp.Tool {
	return mcp.NewTool("campaign_history",
		mcp.WithDescription("List past turns in order."),
		mcp.WithString("campaign_id", mcp.Required(), mcp.Description("Campaign id")),
		mcp.WithNumber("page", mcp.Description("Page number (default 1)")),
		mcp.WithNumber("page_size", mcp.Description("Turns per page (default 20, max 100)")),
	)
}

func (t *turnHistoryTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	p := repository.NewPagination(intArg(req, "page", 1), intArg(req, "page_size", 20))
	result, err := t.campaigns.History(ctx, req.GetString("campaign_id", ""), p)
	if err != nil {
		return errorResult(err)
	}
	if len(result.Items) == 0 {
		return mcp.NewToolResultText("No turns yet."), nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%d turns (page %d/%d):\n\n", result.Total, result.Page, result.TotalPages)
	for _, tr := range result.Items {
		fmt.Fprintf(&b, "[%d] Player: %s\n    Narrator: %s\n", tr.SequenceIndex, tr.PlayerAction, tr.NarrativeResponse)
	}
	return mcp.NewToolResultText(b.String()), nil
}

type endCampaignTool struct {
	campaigns Campaigns
}

func (t *endCampaignTool) Definition() mcp.Tool {
	return mcp.NewTool("campaign_end",
		mcp.WithDescription("End a campaign. Further actions are rejected."),
		mcp.WithString("campaign_id", mcp.Required(), mcp.Description("Campaign id")),
	)
}

func (t *endCampaignTool) Handle(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, err := t.campaigns.End(ctx, req.GetString("campaign_id", ""))
	if err != nil {
		return errorResult(err)
	}
	return mcp.NewToolResultText(fmt.Sprintf("Campaign %q ended after %d turns.", c.Name, c.TurnCount)), nil
}
