package irc

// This file contains documentation for the command handlers.
// The actual handler implementations are split across:
// - server.go: event loop, connection lifecycle, dispatch and gating
// - commands.go: registration, messaging and query commands
// - channels.go: channel membership and channel operator commands

/*
Handler Summary:

Before registration only PASS, NICK, USER and QUIT run; anything else gets
451 and changes nothing. Registration completes after whichever of the
three arrives last, followed by 001-005 and the MOTD (375/372/376, or 422).

Registration:
- PASS (cmdPass): server password, plain or bcrypt
  - 461 nothing given, 462 already registered, 464 wrong password
- NICK (cmdNick): set or change nickname
  - 431 none given, 432 bad characters or too long, 433 taken
  - Registered changes go to the session and everyone sharing a channel
- USER (cmdUser): username and real name
  - 461 missing, 462 already registered

Connection:
- QUIT (cmdQuit): QUIT to channel peers, ERROR to the quitter, then close
- PING (cmdPing): PONG with the token, 409 without one
- CAP (cmdCap): LS/LIST answer with no capabilities, REQ is refused with
  NAK, END is ignored, 410 otherwise

Messaging:
- PRIVMSG (cmdPrivmsg): to nicks and channels
  - 411 no target, 412 no text, 401 unknown nick, 403 unknown channel,
    404 not a member
  - Channel text reaches every member except the sender

Channels:
- JOIN (cmdJoin): keys pair with channels by position
  - 476 bad name, 405 too many channels, 473 +i, 475 +k, 471 +l
  - JOIN to all members, then topic (332/333) and names (353/366)
  - JOIN 0 parts every channel
- PART (cmdPart): 403, 442; PART to all members; empty channels go away
- TOPIC (cmdTopic): query 331 or 332/333; set needs op under +t (482)
- INVITE (cmdInvite): operator only; 341 to the inviter, INVITE to the
  invitee; 443 when already a member. The invitation lasts until used.
- KICK (cmdKick): operator only; 401, 441 per target; KICK to all members
- MODE (cmdMode):
  - Channel query: 324 and 329; "b" alone lists no bans (368)
  - Channel change, operator only: +/-i, +/-t, +/-k key, +/-l limit,
    +/-o nick; 472 for anything else, 696 for a bad key or limit; what
    changed goes out as one MODE
  - User: 221 for yourself, 502 for others, 501 for any change

Queries:
- WHOIS (cmdWhois): 311, 319, 312, 318; 401 then 318 for unknown nicks
- WHO (cmdWho): 352 per channel member or for one nick, then 315
*/
